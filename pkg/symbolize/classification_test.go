package symbolize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyFrameUserCodeRelativePath(t *testing.T) {
	origin := ClassifyFrame("myapp::main", "src/main.rs", true)
	require.Equal(t, OriginUserCode, origin)
	require.True(t, origin.IsUserCode())
}

func TestClassifyFrameTokioByFunctionName(t *testing.T) {
	origin := ClassifyFrame("tokio::runtime::scheduler::inject::Inject::push", "", true)
	require.Equal(t, OriginRuntimeLib, origin)
	require.False(t, origin.IsUserCode())
}

func TestClassifyFrameStdByRustcPath(t *testing.T) {
	origin := ClassifyFrame("std::io::Read::read", "/rustc/abc123def/library/std/src/io/mod.rs", true)
	require.Equal(t, OriginStdLib, origin)
}

func TestClassifyFrameCargoRegistryTokio(t *testing.T) {
	origin := ClassifyFrame(
		"tokio::sync::mutex::Mutex::lock",
		"/home/user/.cargo/registry/src/index.crates.io-xxx/tokio-1.35.0/src/sync/mutex.rs",
		true,
	)
	require.Equal(t, OriginRuntimeLib, origin)
}

func TestClassifyFrameCargoRegistryThirdParty(t *testing.T) {
	origin := ClassifyFrame(
		"serde_json::de::from_str",
		"/home/user/.cargo/registry/src/index.crates.io-xxx/serde_json-1.0.0/src/de.rs",
		true,
	)
	require.Equal(t, OriginThirdParty, origin)
}

func TestClassifyFrameStdByFunctionName(t *testing.T) {
	require.Equal(t, OriginStdLib, ClassifyFrame("std::thread::spawn", "", true))
}

func TestClassifyFrameUnknownOutsideExecutable(t *testing.T) {
	origin := ClassifyFrame("0x7fff12345678", "", false)
	require.Equal(t, OriginUnknown, origin)
}

func TestClassifyFrameFallbackToUserCode(t *testing.T) {
	origin := ClassifyFrame("my_custom_function", "", true)
	require.Equal(t, OriginUserCode, origin)
}

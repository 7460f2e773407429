package symbolize

import "strings"

// Origin classifies a resolved frame as user code, standard library,
// async-runtime library, third-party crate, or unknown (SPEC_FULL.md §3,
// §4.4 step 5). Memory ranges alone can't make this distinction for a
// statically linked binary, so path and function-name heuristics come
// first.
type Origin int

const (
	OriginUnknown Origin = iota
	OriginUserCode
	OriginStdLib
	OriginRuntimeLib
	OriginThirdParty
)

func (o Origin) String() string {
	switch o {
	case OriginUserCode:
		return "user"
	case OriginStdLib:
		return "stdlib"
	case OriginRuntimeLib:
		return "runtime"
	case OriginThirdParty:
		return "third_party"
	default:
		return "unknown"
	}
}

func (o Origin) IsUserCode() bool { return o == OriginUserCode }

var stdPrefixes = []string{"std::", "core::", "alloc::"}

var runtimePrefixes = []string{
	"tokio::", "async_std::", "futures::", "futures_util::", "futures_core::",
	"mio::", "hyper::", "hyper_util::", "tower::", "tower_service::",
}

var thirdPartyPrefixes = []string{
	"serde::", "serde_json::", "tracing::", "log::", "regex::", "crossbeam::",
	"rayon::", "parking_lot::", "bytes::", "hashbrown::", "ahash::",
}

var runtimeCratePatterns = []string{
	"/tokio-", "/async-std-", "/futures-", "/futures-util-", "/futures-core-",
	"/mio-", "/hyper-", "/hyper-util-", "/tower-", "/axum-", "/actix-", "/warp-",
}

// ClassifyFrame orders checks path pattern, then function-name prefix, then
// memory-range fallback, matching the resolution order SPEC_FULL.md §4.4
// step 5 mandates.
func ClassifyFrame(function string, file string, inExecutable bool) Origin {
	if function == "" || function == unknownFunctionLabel || strings.HasPrefix(function, "0x") {
		return OriginUnknown
	}

	if file != "" {
		if origin, ok := classifyByPath(file); ok {
			return origin
		}
	}

	if origin, ok := classifyByFunctionPrefix(function); ok {
		return origin
	}

	if inExecutable {
		return OriginUserCode
	}
	return OriginUnknown
}

func classifyByPath(path string) (Origin, bool) {
	switch {
	case strings.Contains(path, ".cargo/registry/") || strings.Contains(path, `.cargo\registry\`):
		if isRuntimePath(path) {
			return OriginRuntimeLib, true
		}
		return OriginThirdParty, true
	case strings.Contains(path, ".rustup/toolchains/") || strings.Contains(path, `.rustup\toolchains\`):
		return OriginStdLib, true
	case strings.Contains(path, "/rustc/") || strings.Contains(path, `\rustc\`):
		return OriginStdLib, true
	case strings.HasPrefix(path, "/usr/") || strings.HasPrefix(path, "/lib/"):
		return OriginThirdParty, true
	case !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "./") || strings.HasPrefix(path, "src/"):
		return OriginUserCode, true
	case strings.HasPrefix(path, "/"):
		return OriginUserCode, true
	}
	return OriginUnknown, false
}

func classifyByFunctionPrefix(function string) (Origin, bool) {
	if hasAnyPrefix(function, stdPrefixes) {
		return OriginStdLib, true
	}
	if hasAnyPrefix(function, runtimePrefixes) {
		return OriginRuntimeLib, true
	}
	if hasAnyPrefix(function, thirdPartyPrefixes) {
		return OriginThirdParty, true
	}
	return OriginUnknown, false
}

func isRuntimePath(path string) bool {
	for _, p := range runtimeCratePatterns {
		if strings.Contains(path, p) {
			return true
		}
	}
	return false
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

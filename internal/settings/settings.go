package settings

import "fmt"

const CmdName = "hud"

var (
	PidFile    = fmt.Sprintf("/tmp/%s.pid", CmdName)
	LogFile    = fmt.Sprintf("/tmp/%s.log", CmdName)
	SocketPath = fmt.Sprintf("/tmp/%s.sock", CmdName)
)

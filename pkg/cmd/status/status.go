package status

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cong-or/hud/internal/settings"
	"github.com/cong-or/hud/pkg/cmd/common"
)

func NewCommand(o *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:               "status",
		Short:             fmt.Sprintf("Check whether the %s daemon is running", settings.CmdName),
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Run:               o.Run,
	}

	return cmd
}

func (o *Options) Run(cmd *cobra.Command, _ []string) {
	if common.IsDaemonRunning() {
		pidData, _ := os.ReadFile(settings.PidFile)
		fmt.Printf("%s is running (PID %s)\n", settings.CmdName, pidData)
	} else {
		fmt.Printf("%s is not running\n", settings.CmdName)
	}
}

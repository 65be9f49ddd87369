package root

import (
	"github.com/leadpilot-crm/leadpilot-saas/apps/cli/cmd/auth"
	"github.com/leadpilot-crm/leadpilot-saas/apps/cli/cmd/bootstrap"
	segmentcmd "github.com/leadpilot-crm/leadpilot-saas/apps/cli/cmd/segment"
)

func init() {
	Root().AddCommand(auth.Command())
	Root().AddCommand(bootstrap.Command())
	Root().AddCommand(segmentcmd.Command())
}

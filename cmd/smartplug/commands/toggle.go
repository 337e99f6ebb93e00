package commands

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/shizukutanaka/smartplug/internal/controller"
	"github.com/shizukutanaka/smartplug/internal/kasa"
	"github.com/shizukutanaka/smartplug/internal/signals"
)

// toggleCmd represents the toggle command
var toggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Flip the configured outlet once",
	Long: `Discover the strip, flip the configured outlet, confirm the new state
and exit.`,
	RunE: runToggle,
}

func init() {
	rootCmd.AddCommand(toggleCmd)
}

func runToggle(cmd *cobra.Command, args []string) error {
	manager, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg := manager.Get()
	client := kasa.NewClient(logger, kasaOptions(cfg.Plug))
	ctrl := controller.New(logger, manager, controller.KasaDevices(client), signals.NewReader(logger),
		controller.WithNotifier(&printNotifier{out: cmd.OutOrStdout()}),
	)

	ctx, cancel := context.WithCancel(cmd.Context())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ctrl.Run(gctx) })

	_, toggleErr := ctrl.Toggle(ctx)
	cancel()
	if err := g.Wait(); err != nil {
		return err
	}
	return toggleErr
}

// printNotifier writes status messages straight to out. It suits one-shot
// commands that have no event loop.
type printNotifier struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printNotifier) StatusMessage(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, text)
}

func (p *printNotifier) InfoUpdate(controller.Info) {}

func (p *printNotifier) MonitoringStateChanged(bool) {}

package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/existflow/ironsync/internal/logger"
	"github.com/existflow/ironsync/internal/model"
	"github.com/existflow/ironsync/internal/store"
)

// Run shows the dashboard until the user quits or ctx is cancelled
func Run(ctx context.Context, st *store.Store, gw Mutator, id model.Identity, log *logger.Logger) error {
	m := NewModel(ctx, st, gw, id, log)
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	return nil
}

package store

import (
	"context"

	"github.com/roach88/ngat/internal/authority"
	"github.com/roach88/ngat/internal/history"
)

var (
	_ history.Sink          = (*Store)(nil)
	_ authority.CommandSink = (*Store)(nil)
)

// AppendHistory implements history.Sink.
func (s *Store) AppendHistory(evt history.Event) error {
	return s.WriteHistory(context.Background(), evt)
}

// AppendShadow implements history.Sink.
func (s *Store) AppendShadow(e history.Entry) error {
	return s.WriteShadow(context.Background(), e)
}

// ClearHistoryMode implements history.Sink.
func (s *Store) ClearHistoryMode(mode history.Mode) error {
	_, err := s.DeleteHistoryMode(context.Background(), mode)
	return err
}

// ClearShadow implements history.Sink.
func (s *Store) ClearShadow() error {
	return s.DeleteShadow(context.Background())
}

// AppendCommand implements authority.CommandSink.
func (s *Store) AppendCommand(entry authority.LoggedCommand) error {
	return s.WriteCommand(context.Background(), entry)
}

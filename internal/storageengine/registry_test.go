package storageengine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSink struct{ created int }

func (f *fakeSink) OnBlockCreate(uint64, uint64, int64) error { f.created++; return nil }
func (f *fakeSink) OnBlockUpdate(uint64, uint64, int64) error { return nil }
func (f *fakeSink) OnBlockFlush(uint64, uint64, int64) error  { return nil }
func (f *fakeSink) OnBlockDelete(uint64, uint64, int64) error { return nil }

type fakeSource struct {
	sink EventSink
}

func (s *fakeSource) Init(sink EventSink) error      { s.sink = sink; return nil }
func (s *fakeSource) InstallInterception() error     { return nil }
func (s *fakeSource) UninstallInterception() error   { return nil }
func (s *fakeSource) TriggerEvent(k EventKindHint, id, wal uint64, ts int64) error {
	return s.sink.OnBlockCreate(id, wal, ts)
}
func (s *fakeSource) GetStats() Stats       { return Stats{} }
func (s *fakeSource) IsSupported() bool     { return true }
func (s *fakeSource) GetEngineName() string { return "fake" }

func TestRegistryResolvesRegisteredEngine(t *testing.T) {
	r := NewRegistry()
	r.Register("fake", func(opts map[string]string) (Source, error) { return &fakeSource{}, nil })

	src, err := r.Get("fake", nil)
	require.NoError(t, err)
	require.True(t, src.IsSupported())
	require.Equal(t, "fake", src.GetEngineName())

	sink := &fakeSink{}
	require.NoError(t, src.Init(sink))
	require.NoError(t, src.TriggerEvent(HintCreate, 1, 2, 3))
	require.Equal(t, 1, sink.created)
}

func TestRegistryReturnsUnsupportedForUnknownName(t *testing.T) {
	r := NewRegistry()
	src, err := r.Get("nonexistent", nil)
	require.NoError(t, err)
	require.False(t, src.IsSupported())
	require.Equal(t, "nonexistent", src.GetEngineName())

	err = src.TriggerEvent(HintCreate, 1, 1, 1)
	require.Error(t, err)
}

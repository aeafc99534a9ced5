package journal

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fundchain/core/types"
	"fundchain/native/crowdfund"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"), slog.New(slog.NewJSONHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestAppendAndList(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	idA, idB := crowdfund.FormatID([32]byte{1}), crowdfund.FormatID([32]byte{2})

	first, err := j.Append(ctx, &types.Event{Type: crowdfund.EventTypeCampaignCreated, Attributes: map[string]string{"campaign": idA, "goal": "10"}})
	require.NoError(t, err)
	second, err := j.Append(ctx, &types.Event{Type: crowdfund.EventTypeCampaignCreated, Attributes: map[string]string{"campaign": idB}})
	require.NoError(t, err)
	require.Greater(t, second.Sequence, first.Sequence)
	require.NotEqual(t, first.DeliveryID, second.DeliveryID)
	require.True(t, Verify(first))

	all, err := j.List(ctx, 0, 0, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "10", all[0].Attributes["goal"])
	require.Equal(t, first.Digest, all[0].Digest)
	require.True(t, Verify(all[0]))

	after, err := j.List(ctx, first.Sequence, 10, "")
	require.NoError(t, err)
	require.Len(t, after, 1)
	require.Equal(t, idB, after[0].Campaign)

	onlyA, err := j.List(ctx, 0, 10, idA)
	require.NoError(t, err)
	require.Len(t, onlyA, 1)

	tampered := all[0]
	tampered.Attributes = map[string]string{"campaign": idA, "goal": "11"}
	require.False(t, Verify(tampered))
}

func TestEmitSkipsUntypedEvents(t *testing.T) {
	j := openTestJournal(t)
	j.Emit(crowdfund.WrapEvent(crowdfund.CampaignClosedEvent([32]byte{3})))
	j.Emit(untyped{})
	entries, err := j.List(context.Background(), 0, 10, "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, crowdfund.EventTypeCampaignClosed, entries[0].Type)
}

type untyped struct{}

func (untyped) EventType() string { return "untyped" }

func TestSubscribeReceivesNewEntries(t *testing.T) {
	j := openTestJournal(t)
	ch, cancel, err := j.Subscribe(4)
	require.NoError(t, err)

	_, err = j.Append(context.Background(), &types.Event{Type: "x"})
	require.NoError(t, err)
	select {
	case entry := <-ch:
		require.Equal(t, "x", entry.Type)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive entry")
	}

	cancel()
	cancel()
	_, open := <-ch
	require.False(t, open)
}

func TestCloseEndsSubscriptions(t *testing.T) {
	j, err := Open(":memory:", nil)
	require.NoError(t, err)
	ch, _, err := j.Subscribe(1)
	require.NoError(t, err)
	require.NoError(t, j.Close())
	_, open := <-ch
	require.False(t, open)
	_, _, err = j.Subscribe(1)
	require.ErrorIs(t, err, errClosed)
}

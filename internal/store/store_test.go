package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"ActionSentinel/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), Config{
		Driver: DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "actions.db"),
	}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func buyDef(user string) model.Definition {
	return model.Definition{
		UserID:      user,
		Description: "buy the dip",
		Kind:        model.KindBuyOnDivergence,
		Domain:      model.DomainStockPrices,
		Symbol:      "AAPL",
		TargetPrice: 150,
		Tolerance:   5,
	}
}

func stopLossDef(user string) model.Definition {
	return model.Definition{
		UserID:          user,
		Description:     "protect",
		Kind:            model.KindStopLoss,
		Domain:          model.DomainCryptoPrices,
		Symbol:          "BTC",
		PurchasePrice:   100,
		StopLossPercent: 0.1,
	}
}

func TestOpen_RejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestCreateAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, buyDef("alice"))
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "alice", got.UserID)
	assert.Equal(t, model.KindBuyOnDivergence, got.Kind)
	assert.Equal(t, model.TriggerAbove, got.Direction)
	assert.Equal(t, 150.0, got.TargetPrice)
	assert.Equal(t, 5.0, got.Tolerance)
	assert.Equal(t, created.CreatedAt.UnixMilli(), got.CreatedAt.UnixMilli())
}

func TestCreate_StopLossRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, stopLossDef("bob"))
	require.NoError(t, err)

	got, ok, err := s.LoadOne(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.KindStopLoss, got.Kind)
	assert.InDelta(t, 90.0, got.TargetPrice, 1e-9)
	assert.Equal(t, model.TriggerBelow, got.Direction)
	assert.Equal(t, 100.0, got.StopLoss.PurchasePrice)
	assert.Equal(t, 0.1, got.StopLoss.StopLossPercent)
}

func TestCreate_RejectsInvalid(t *testing.T) {
	s := openTestStore(t)
	def := buyDef("alice")
	def.Kind = model.Kind("ASK_PERMISSION")

	_, err := s.Create(context.Background(), def)
	assert.ErrorIs(t, err, model.ErrUnknownKind)

	seq, err := s.LatestEventSeq(context.Background())
	require.NoError(t, err)
	assert.Zero(t, seq, "rejected create must not emit an event")
}

func TestPatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	buy, err := s.Create(ctx, buyDef("alice"))
	require.NoError(t, err)

	desc, target, pct := "renamed", 160.0, 0.5
	patched, err := s.Patch(ctx, buy.ID, Patch{Description: &desc, TargetPrice: &target, StopLossPercent: &pct})
	require.NoError(t, err)
	assert.Equal(t, "renamed", patched.Description)
	assert.Equal(t, 160.0, patched.TargetPrice)
	assert.Zero(t, patched.StopLoss, "stop-loss fields do not apply to buy actions")

	sl, err := s.Create(ctx, stopLossDef("bob"))
	require.NoError(t, err)
	purchase := 200.0
	patched, err = s.Patch(ctx, sl.ID, Patch{PurchasePrice: &purchase, TargetPrice: &target})
	require.NoError(t, err)
	assert.InDelta(t, 180.0, patched.TargetPrice, 1e-9, "target is re-derived for stop-loss")

	got, err := s.Get(ctx, sl.ID)
	require.NoError(t, err)
	assert.InDelta(t, 180.0, got.TargetPrice, 1e-9)

	bad := 2.0
	_, err = s.Patch(ctx, sl.ID, Patch{StopLossPercent: &bad})
	assert.ErrorIs(t, err, model.ErrInvalidAction)

	_, err = s.Patch(ctx, 999, Patch{Description: &desc})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a, err := s.Create(ctx, buyDef("alice"))
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, a.ID))

	_, err = s.Get(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, ok, err := s.LoadOne(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, s.Delete(ctx, a.ID), ErrNotFound)
}

func TestLoadAll(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Create(ctx, buyDef("alice"))
		require.NoError(t, err)
	}
	_, err := s.Create(ctx, stopLossDef("bob"))
	require.NoError(t, err)

	all, err := s.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].ID, all[i].ID)
	}
}

func insertRawAction(t *testing.T, s *Store, user, kind, domain string) int64 {
	t.Helper()
	var id int64
	err := s.db.QueryRowContext(context.Background(), `INSERT INTO actions
		(user_id, description, kind, context_domain, context_key, target_price, divergence_tolerance,
		 trigger_below, created_at, updated_at)
		VALUES (?, '', ?, ?, 'AAPL', 1, 0, 0, 0, 0) RETURNING id`, user, kind, domain).Scan(&id)
	require.NoError(t, err)
	return id
}

func TestLoadAll_SkipsUnmappableRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	good, err := s.Create(ctx, buyDef("alice"))
	require.NoError(t, err)
	badKind := insertRawAction(t, s, "alice", "ASK_PERMISSION", "STOCK_PRICES")
	badDomain := insertRawAction(t, s, "alice", "BUY_ON_DIVERGENCE", "WEATHER")

	all, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, good.ID, all[0].ID)

	page, err := s.Query(ctx, Criteria{UserID: "alice"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, good.ID, page.Items[0].ID)

	_, err = s.Get(ctx, badKind)
	assert.ErrorIs(t, err, model.ErrUnknownKind)
	_, _, err = s.LoadOne(ctx, badDomain)
	assert.ErrorIs(t, err, model.ErrUnknownDomain)
}

func TestOutbox_RecordsMutationsInOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a, err := s.Create(ctx, buyDef("alice"))
	require.NoError(t, err)
	desc := "changed"
	_, err = s.Patch(ctx, a.ID, Patch{Description: &desc})
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, a.ID))

	events, err := s.EventsAfter(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, model.EventAdded, events[0].Kind)
	assert.Equal(t, model.EventUpdated, events[1].Kind)
	assert.Equal(t, model.EventDeleted, events[2].Kind)
	for _, e := range events {
		assert.Equal(t, a.ID, e.ActionID)
		assert.Equal(t, "alice", e.UserID)
	}

	latest, err := s.LatestEventSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, events[2].Seq, latest)

	n, err := s.CountEventsAfter(ctx, events[0].Seq)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	page, err := s.EventsAfter(ctx, events[0].Seq, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, events[1].Seq, page[0].Seq)
}

func TestAppendEvent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seq, err := s.AppendEvent(ctx, model.Event{Kind: model.EventUpdated, ActionID: 42, UserID: "u"})
	require.NoError(t, err)
	assert.NotZero(t, seq)

	events, err := s.EventsAfter(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(42), events[0].ActionID)
}

func TestQuery(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		def := buyDef("alice")
		def.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		_, err := s.Create(ctx, def)
		require.NoError(t, err)
	}
	sl := stopLossDef("bob")
	sl.CreatedAt = base
	_, err := s.Create(ctx, sl)
	require.NoError(t, err)

	page, err := s.Query(ctx, Criteria{UserID: "alice", Size: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, page.TotalElements)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Items, 2)
	assert.True(t, page.Items[0].CreatedAt.After(page.Items[1].CreatedAt), "default sort is newest first")

	last, err := s.Query(ctx, Criteria{UserID: "alice", Size: 2, Page: 2})
	require.NoError(t, err)
	assert.Len(t, last.Items, 1)

	page, err = s.Query(ctx, Criteria{Kind: "SET_STOP_LOSS"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "bob", page.Items[0].UserID)

	from := base.Add(3 * time.Hour)
	page, err = s.Query(ctx, Criteria{CreatedFrom: &from, SortBy: []string{"createdAt"}, SortDirection: "asc"})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.True(t, page.Items[0].CreatedAt.Before(page.Items[1].CreatedAt))
}

func TestCriteriaNormalize(t *testing.T) {
	c, err := Criteria{}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, DefaultPageSize, c.Size)
	assert.Equal(t, "DESC", c.SortDirection)
	assert.Equal(t, []string{"createdAt"}, c.SortBy)

	bad := []Criteria{
		{Page: -1},
		{Size: 101},
		{Size: -3},
		{SortDirection: "sideways"},
		{SortBy: []string{"password"}},
		{Kind: "ASK_PERMISSION"},
	}
	for _, b := range bad {
		_, err := b.Normalize()
		assert.ErrorIs(t, err, ErrInvalidCriteria, "%+v", b)
	}
}

func TestRebind(t *testing.T) {
	pg := &Store{driver: DriverPostgres}
	assert.Equal(t, "a = $1 AND b = $2", pg.rebind("a = ? AND b = ?"))

	lite := &Store{driver: DriverSQLite}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

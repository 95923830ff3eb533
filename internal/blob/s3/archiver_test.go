package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketfund/internal/domain"
)

type memWriter struct {
	objects map[string][]byte
	err     error
}

func (w *memWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if w.err != nil {
		return w.err
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.objects[path] = b
	return nil
}

func (w *memWriter) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return w.Put(ctx, path, data, "")
}

type memLedger struct {
	rows []domain.FundingAction
}

func (l *memLedger) ListBefore(_ context.Context, before time.Time, limit int) ([]domain.FundingAction, error) {
	var out []domain.FundingAction
	for _, r := range l.rows {
		if r.CreatedAt.Before(before) && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (l *memLedger) DeleteByIDs(_ context.Context, ids []string) (int64, error) {
	drop := map[string]bool{}
	for _, id := range ids {
		drop[id] = true
	}
	var kept []domain.FundingAction
	var n int64
	for _, r := range l.rows {
		if drop[r.ID] {
			n++
			continue
		}
		kept = append(kept, r)
	}
	l.rows = kept
	return n, nil
}

type memAudit struct {
	events []string
}

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func ledgerRows(n int, at time.Time) []domain.FundingAction {
	rows := make([]domain.FundingAction, n)
	for i := range rows {
		rows[i] = domain.FundingAction{
			ID:        fmt.Sprintf("id-%02d", i),
			Market:    "0xmm",
			Kind:      domain.FundingAdd,
			Amount:    big.NewInt(int64(i)),
			Status:    domain.FundingSucceeded,
			CreatedAt: at,
		}
	}
	return rows
}

func TestArchiveFundingActions(t *testing.T) {
	cutoff := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	old := cutoff.Add(-48 * time.Hour)
	recent := cutoff.Add(time.Hour)

	ledger := &memLedger{rows: append(ledgerRows(5, old), domain.FundingAction{
		ID: "fresh", Amount: big.NewInt(1), CreatedAt: recent,
	})}
	writer := &memWriter{objects: map[string][]byte{}}
	audit := &memAudit{}
	a := NewArchiver(writer, ledger, audit, 2)
	a.now = func() time.Time { return time.Date(2026, 4, 30, 3, 0, 0, 0, time.UTC) }

	n, err := a.ArchiveFundingActions(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	require.Len(t, ledger.rows, 1)
	assert.Equal(t, "fresh", ledger.rows[0].ID)
	assert.Len(t, audit.events, 3)

	require.Len(t, writer.objects, 3)
	data, ok := writer.objects["funding_actions/2026-01-31/20260430T030000Z-0000.jsonl"]
	require.True(t, ok)

	var lines []domain.FundingAction
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var fa domain.FundingAction
		require.NoError(t, json.Unmarshal(sc.Bytes(), &fa))
		lines = append(lines, fa)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "id-00", lines[0].ID)
	assert.Equal(t, "1", lines[1].Amount.String())
}

func TestArchiveKeepsRowsWhenUploadFails(t *testing.T) {
	cutoff := time.Now()
	ledger := &memLedger{rows: ledgerRows(3, cutoff.Add(-time.Hour))}
	writer := &memWriter{objects: map[string][]byte{}, err: errors.New("bucket gone")}
	a := NewArchiver(writer, ledger, &memAudit{}, 10)

	n, err := a.ArchiveFundingActions(context.Background(), cutoff)
	assert.ErrorContains(t, err, "bucket gone")
	assert.Zero(t, n)
	assert.Len(t, ledger.rows, 3)
}

func TestArchiveNothingToDo(t *testing.T) {
	writer := &memWriter{objects: map[string][]byte{}}
	a := NewArchiver(writer, &memLedger{}, &memAudit{}, 10)

	n, err := a.ArchiveFundingActions(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, writer.objects)
}

func TestNormaliseEndpointAndKey(t *testing.T) {
	assert.Equal(t, "https://s3.example", normaliseEndpoint("s3.example", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("http://minio:9000", true))

	c := &Client{prefix: "ledger"}
	assert.Equal(t, "ledger/a/b.jsonl", c.Key("/a/b.jsonl"))
	assert.Equal(t, "a.jsonl", (&Client{}).Key("a.jsonl"))
}

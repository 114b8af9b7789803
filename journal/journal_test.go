package journal

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/peterldowns/testy/check"

	"github.com/gavelworks/gavel/core"
)

func event(typ core.EventType, lotID uint64) core.Event {
	return core.Event{
		Type:  typ,
		Time:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		LotID: lotID,
		Actor: "alice",
	}
}

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.journal")

	w, err := OpenWriter(path)
	check.Nil(t, err)
	check.Nil(t, w.Record(event(core.EventLotCreated, 1)))
	check.Nil(t, w.Record(event(core.EventBidAccepted, 1)))
	check.Nil(t, w.Record(event(core.EventLotSettled, 1)))
	check.Nil(t, w.Close())

	frames, err := ReadFile(path)
	check.Nil(t, err)
	check.Equal(t, 3, len(frames))
	check.Equal(t, core.EventLotCreated, frames[0].Event.Type)
	check.Equal(t, core.EventLotSettled, frames[2].Event.Type)
	check.Equal(t, uint64(1), frames[0].Seq)
	check.Equal(t, uint64(3), frames[2].Seq)
	for _, f := range frames {
		check.Equal(t, w.Stream(), f.Stream)
	}
}

func TestReopenResumesStream(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.journal")

	w, err := OpenWriter(path)
	check.Nil(t, err)
	stream := w.Stream()
	check.Nil(t, w.Record(event(core.EventLotCreated, 1)))
	check.Nil(t, w.Close())

	w, err = OpenWriter(path)
	check.Nil(t, err)
	check.Equal(t, stream, w.Stream())
	check.Nil(t, w.Record(event(core.EventBidAccepted, 1)))
	check.Nil(t, w.Close())

	frames, err := ReadFile(path)
	check.Nil(t, err)
	check.Equal(t, 2, len(frames))
	check.Equal(t, uint64(2), frames[1].Seq)
	check.Equal(t, stream, frames[1].Stream)
}

func TestEventRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.journal")
	endTime := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)

	w, err := OpenWriter(path)
	check.Nil(t, err)
	check.Nil(t, w.Record(core.Event{
		Type:     core.EventLotSettled,
		Time:     endTime,
		LotID:    9,
		Actor:    "bob",
		Payee:    "alice",
		Currency: "native",
		Amount:   "1000",
		Fee:      "50",
		Net:      "950",
		EndTime:  &endTime,
	}))
	check.Nil(t, w.Close())

	frames, err := ReadFile(path)
	check.Nil(t, err)
	check.Equal(t, 1, len(frames))
	got := frames[0].Event
	check.Equal(t, "1000", got.Amount)
	check.Equal(t, "50", got.Fee)
	check.Equal(t, "950", got.Net)
	check.True(t, got.EndTime.Equal(endTime))
}

func TestTruncatedFrameRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.journal")

	w, err := OpenWriter(path)
	check.Nil(t, err)
	check.Nil(t, w.Record(event(core.EventLotCreated, 1)))
	check.Nil(t, w.Close())

	raw, err := os.ReadFile(path)
	check.Nil(t, err)
	truncated := raw[:len(raw)-3]

	_, err = ReadAll(bytes.NewReader(truncated))
	check.NotNil(t, err)
}

func TestImplausibleLengthRejected(t *testing.T) {
	var buf bytes.Buffer
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], maxFrameSize+1)
	buf.Write(prefix[:])

	_, err := ReadAll(&buf)
	check.NotNil(t, err)
}

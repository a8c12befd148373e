package warmth

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"
)

func bulkIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("c%03d", i)
	}
	return ids
}

func TestBulkChunking(t *testing.T) {
	remote := &fakeRemote{score: 42}
	c := testCache(t, remote)

	out := c.GetBulk(context.Background(), bulkIDs(450), BulkOptions{MaxChunk: 200})

	if n := remote.bulkCalls.Load(); n != 3 {
		t.Errorf("chunk calls = %d, want 3", n)
	}
	sizes := append([]int(nil), remote.bulkSizes...)
	sort.Ints(sizes)
	if len(sizes) != 3 || sizes[0] != 50 || sizes[1] != 200 || sizes[2] != 200 {
		t.Errorf("chunk sizes = %v, want [50 200 200]", sizes)
	}
	if len(out) != 450 {
		t.Errorf("result size = %d, want 450", len(out))
	}
}

func TestBulkDeduplicatesAndSkipsBlanks(t *testing.T) {
	remote := &fakeRemote{score: 42}
	c := testCache(t, remote)

	out := c.GetBulk(context.Background(), []string{"c1", "c1", "", "c1"}, BulkOptions{})
	if len(out) != 1 {
		t.Errorf("result size = %d, want 1", len(out))
	}
	if remote.bulkSizes[0] != 1 {
		t.Errorf("fetched %d ids, want 1", remote.bulkSizes[0])
	}
}

func TestBulkServesFreshFromCache(t *testing.T) {
	remote := &fakeRemote{score: 42}
	c := testCache(t, remote)
	c.SetWarmth("c1", 77, nil, "seed")
	c.SetWarmth("c2", 33, nil, "seed")

	out := c.GetBulk(context.Background(), []string{"c1", "c2"}, BulkOptions{})
	if n := remote.bulkCalls.Load(); n != 0 {
		t.Errorf("fresh cached ids issued %d chunk calls, want 0", n)
	}
	if out["c1"].Score != 77 || out["c2"].Score != 33 {
		t.Errorf("cached values not served: %v", out)
	}
}

func TestBulkForceBypassesCache(t *testing.T) {
	remote := &fakeRemote{score: 42}
	c := testCache(t, remote)
	c.SetWarmth("c1", 77, nil, "seed")

	out := c.GetBulk(context.Background(), []string{"c1"}, BulkOptions{Force: true})
	if n := remote.bulkCalls.Load(); n != 1 {
		t.Errorf("forced bulk issued %d chunk calls, want 1", n)
	}
	if out["c1"].Score != 42 {
		t.Errorf("forced value = %v, want 42", out["c1"].Score)
	}
}

func TestBulkPartialChunkFailure(t *testing.T) {
	remote := &fakeRemote{score: 42, failBulkID: "c005"}
	c := testCache(t, remote)

	// Chunk size 10 over 30 ids: the chunk holding c005 fails, the other
	// two succeed.
	ids := bulkIDs(30)
	out := c.GetBulk(context.Background(), ids, BulkOptions{MaxChunk: 10})

	if n := remote.bulkCalls.Load(); n != 3 {
		t.Fatalf("chunk calls = %d, want 3", n)
	}
	if len(out) != 20 {
		t.Errorf("result size = %d, want 20 (one failed chunk omitted)", len(out))
	}
	if _, ok := out["c005"]; ok {
		t.Error("failed chunk contributed entries")
	}
	if _, ok := out["c015"]; !ok {
		t.Error("healthy chunk missing from result")
	}
}

func TestBulkFailureKeepsPriorCachedValue(t *testing.T) {
	remote := &fakeRemote{score: 42, failBulkID: "c1"}
	c := testCache(t, remote)
	c.SetWarmth("c1", 66, nil, "seed")
	time.Sleep(5 * time.Millisecond)

	out := c.GetBulk(context.Background(), []string{"c1"}, BulkOptions{Force: true})
	if _, ok := out["c1"]; ok {
		t.Error("failed chunk must contribute nothing")
	}
	if rec := c.Get("c1"); rec.Score != 66 {
		t.Errorf("prior cached value = %v, want 66", rec.Score)
	}
}

func TestBulkPerEntityErrorReportedByOmission(t *testing.T) {
	remote := &fakeRemote{score: 42, entityErrs: map[string]string{"c2": "not found"}}
	c := testCache(t, remote)

	out := c.GetBulk(context.Background(), []string{"c1", "c2", "c3"}, BulkOptions{})
	if len(out) != 2 {
		t.Errorf("result size = %d, want 2", len(out))
	}
	if _, ok := out["c2"]; ok {
		t.Error("entity with server-side error must be omitted")
	}
}

func TestBulkJoinsInFlightSingleRefresh(t *testing.T) {
	remote := &fakeRemote{score: 58, block: make(chan struct{})}
	c := testCache(t, remote)

	started := make(chan struct{})
	go func() {
		close(started)
		c.GetOrRefresh(context.Background(), "c1", Options{Force: true})
	}()
	<-started
	time.Sleep(30 * time.Millisecond) // let the single refresh register

	done := make(chan map[string]Record, 1)
	go func() {
		done <- c.GetBulk(context.Background(), []string{"c1"}, BulkOptions{})
	}()
	time.Sleep(30 * time.Millisecond)
	close(remote.block)

	out := <-done
	if rec, ok := out["c1"]; !ok || rec.Score != 58 {
		t.Errorf("bulk result = %v, want joined value 58", out)
	}
	if n := remote.bulkCalls.Load(); n != 0 {
		t.Errorf("bulk issued %d chunk calls for an in-flight id, want 0", n)
	}
	if n := remote.singleCalls.Load(); n != 1 {
		t.Errorf("single calls = %d, want 1 (bulk joined the flight)", n)
	}
}

func TestChunkIDs(t *testing.T) {
	chunks := chunkIDs(bulkIDs(5), 2)
	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(chunks))
	}
	if len(chunks[0]) != 2 || len(chunks[2]) != 1 {
		t.Errorf("chunk sizes = %d/%d/%d, want 2/2/1", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
	if chunkIDs(nil, 10) != nil {
		t.Error("empty input should produce no chunks")
	}
}

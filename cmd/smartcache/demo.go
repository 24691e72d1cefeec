package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/shammianand/smartcache"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Walk through eviction, expiry and loading on a simulated clock",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runDemo(cmd.Context(), cmd.OutOrStdout())
	},
}

func runDemo(ctx context.Context, w io.Writer) error {
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	reg, err := smartcache.NewRegistry(smartcache.CacheSettings{
		MaxSize:    2,
		DefaultTTL: 30 * time.Minute,
	}, smartcache.RegistryOptions{Clock: mock})
	if err != nil {
		return err
	}
	defer reg.Shutdown()

	fmt.Fprintln(w, "== LRU eviction (max_size=2)")
	lru, err := reg.GetOrCreate("lru")
	if err != nil {
		return err
	}
	lru.Set("a", 1)
	lru.Set("b", 2)
	lru.Get("a")
	lru.Set("c", 3)
	for _, key := range []string{"a", "b", "c"} {
		v, ok := lru.Get(key)
		fmt.Fprintf(w, "  get(%s) = %v, %v\n", key, v, ok)
	}

	fmt.Fprintln(w, "== TTL expiry")
	ttl, err := reg.GetOrCreate("ttl")
	if err != nil {
		return err
	}
	if err := ttl.SetWithTTL("x", 1, time.Second); err != nil {
		return err
	}
	v, ok := ttl.Get("x")
	fmt.Fprintf(w, "  get(x) = %v, %v\n", v, ok)
	mock.Add(time.Second)
	v, ok = ttl.Get("x")
	fmt.Fprintf(w, "  after %s: get(x) = %v, %v\n", time.Second, v, ok)

	fmt.Fprintln(w, "== Loader")
	loads := 0
	load := func(context.Context) (any, error) {
		loads++
		return "computed", nil
	}
	for range 3 {
		if _, err := lru.GetOrLoad(ctx, "report", load); err != nil {
			return err
		}
	}
	fmt.Fprintf(w, "  3 lookups, %d load\n", loads)

	fmt.Fprintln(w, "== Stats")
	for _, name := range reg.Names() {
		c, _ := reg.Existing(name)
		s := c.Stats()
		fmt.Fprintf(w, "  %-4s size=%s/%s hits=%s misses=%s evictions=%s expirations=%s hit_rate=%.0f%%\n",
			name,
			humanize.Comma(int64(s.Size)), humanize.Comma(int64(s.MaxSize)),
			humanize.Comma(int64(s.Hits)), humanize.Comma(int64(s.Misses)),
			humanize.Comma(int64(s.Evictions)), humanize.Comma(int64(s.Expirations)),
			s.HitRate()*100,
		)
	}
	return nil
}

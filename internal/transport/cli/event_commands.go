package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"chemviz-client-go/internal/domain/eventbus/repository"
)

func (a *App) events(ctx context.Context, args []string) error {
	fs := a.flagSet("events")
	limit := fs.Int("limit", 20, "number of events to show")
	topic := fs.String("topic", "", "only show this topic")
	if err := parse(fs, args); err != nil {
		return err
	}
	if a.deps.Events == nil {
		return fmt.Errorf("event history is off; set events.persist and a sqlite dsn")
	}

	var (
		items []*repository.Event
		err   error
	)
	if *topic != "" {
		items, err = a.deps.Events.FindByTopic(ctx, *topic, *limit)
	} else {
		items, err = a.deps.Events.Recent(ctx, *limit)
	}
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(a.deps.Stdout, "no events")
		return nil
	}

	tw := newTable(a.deps.Stdout)
	fmt.Fprintln(tw, "TIME\tTOPIC\tNAMESPACE\tDETAIL")
	for _, ev := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", ev.CreatedAt.Local().Format(time.RFC3339), ev.Topic, ev.Namespace, eventDetail(ev))
	}
	return tw.Flush()
}

// eventDetail lists the payload fields other than the ones shown in their
// own columns.
func eventDetail(ev *repository.Event) string {
	keys := make([]string, 0, len(ev.Data))
	for k, v := range ev.Data {
		if k == "namespace" || k == "at" || v == nil || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, ev.Data[k]))
	}
	return strings.Join(parts, " ")
}

package driver

import (
	"context"
	"slices"

	"github.com/vk/cratedrive/internal/gcx"
)

// driverErrorAttr marks the entry function to exercise error paths of the
// driver itself.
const driverErrorAttr = "driver_error"

// checkForDriverErrorAttr honours `#[driver_error]` on the entry function:
// `driver_error(delay_bug_from_inside_query)` records a delayed bug from
// inside a query, a bare `driver_error` is fatal, anything else warns.
// Diagnostics point at the entry function.
func checkForDriverErrorAttr(ctx context.Context, tcx *gcx.Context) error {
	def, ok := tcx.EntryFn(ctx)
	if !ok {
		return nil
	}
	span := tcx.DefSpan(def)
	for _, attr := range tcx.GetAttrs(ctx, def, driverErrorAttr) {
		args, hasList := attr.MetaItemList()
		switch {
		case hasList && slices.Contains(args, "delay_bug_from_inside_query"):
			tcx.TriggerDelayBug(ctx, def)
		case !hasList:
			return tcx.Sess.Diag.Fatal("fatal error triggered by #[driver_error]", &span)
		default:
			tcx.Sess.Diag.Warn("unexpected annotation used with #[driver_error(...)]!", "", &span)
		}
	}
	return nil
}

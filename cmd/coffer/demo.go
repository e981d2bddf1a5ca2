package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Tessera-Labs/coffer/pkg/campaign"
	"github.com/Tessera-Labs/coffer/pkg/config"
	"github.com/Tessera-Labs/coffer/pkg/engine"
	"github.com/Tessera-Labs/coffer/pkg/events"
	"github.com/Tessera-Labs/coffer/pkg/gateway"
	"github.com/Tessera-Labs/coffer/pkg/ledger"
)

// runDemo walks three campaign lifecycles against an in-memory stack
// and prints the resulting event stream. Deterministic: fixed clock,
// fixed amounts, no network.
func runDemo(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("demo", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var jsonOutput bool
	cmd.BoolVar(&jsonOutput, "json", false, "Print the event stream as JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	if err := playDemo(stdout, jsonOutput); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

type demoWorld struct {
	out      io.Writer
	engine   *engine.Engine
	recorder *gateway.Recorder
	now      time.Time
}

func playDemo(out io.Writer, jsonOutput bool) error {
	ctx := context.Background()

	params := config.DefaultParams()
	params.Owner = "owner"
	params.Sink = "treasury"
	params.DonationRates[campaign.TypeStartup] = 200  // 2%
	params.RefundRate = 1000                          // 10%
	params.SuccessRates[campaign.TypeStartup] = 500   // 5%
	custody, err := config.NewCustody(params)
	if err != nil {
		return err
	}

	// JSON mode emits only the event stream.
	narrative := out
	if jsonOutput {
		narrative = io.Discard
	}
	w := &demoWorld{
		out:      narrative,
		recorder: gateway.NewRecorder(),
		now:      time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC),
	}
	eng, err := engine.New(engine.Options{
		Store:   ledger.NewMemoryStore(),
		Custody: custody,
		Gateway: w.recorder,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		return err
	}
	w.engine = eng.WithClock(func() time.Time { return w.now })

	fmt.Fprintf(narrative, "%sCoffer demo%s (rates: donation 2%%, refund 10%%, success 5%%)\n",
		colorBold+colorBlue, colorReset)

	if err := w.successStory(ctx); err != nil {
		return err
	}
	if err := w.failureStory(ctx); err != nil {
		return err
	}
	if err := w.closureStory(ctx); err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(w.engine.Journal().Query(events.Filter{}))
	}
	return w.printJournal()
}

// successStory: fund a campaign past its target and withdraw.
func (w *demoWorld) successStory(ctx context.Context) error {
	w.section("1. A campaign that reaches its target")

	c, err := w.engine.CreateCampaign(ctx, "alice", engine.CreateParams{
		Type:         campaign.TypeStartup,
		Asset:        "USD",
		TargetAmount: 1000,
		EndTime:      w.now.Add(30 * 24 * time.Hour),
		MetadataRef:  "ipfs://demo/success",
	})
	if err != nil {
		return err
	}
	w.step("alice opens campaign %d: target 1000 USD, 30 days", c.ID)

	r, err := w.engine.Donate(ctx, "bob", c.ID, 600)
	if err != nil {
		return err
	}
	w.step("bob donates %d: %d escrowed, %d commission to treasury", r.Gross, r.Net, r.Commission)

	r, err = w.engine.Donate(ctx, "carol", c.ID, 500)
	if err != nil {
		return err
	}
	w.step("carol donates %d: raised %d reaches the target, status %s",
		r.Gross, r.Campaign.RaisedAmount, r.Campaign.Status)

	r, err = w.engine.WithdrawFunds(ctx, "alice", c.ID)
	if err != nil {
		return err
	}
	w.step("alice withdraws: %d paid out, %d success commission", r.Net, r.Commission)
	return nil
}

// failureStory: miss the deadline, refund one donor in full, sweep
// the unclaimed remainder.
func (w *demoWorld) failureStory(ctx context.Context) error {
	w.section("2. A campaign that misses its deadline")

	c, err := w.engine.CreateCampaign(ctx, "alice", engine.CreateParams{
		Type:         campaign.TypeStartup,
		Asset:        "USD",
		TargetAmount: 50_000,
		EndTime:      w.now.Add(14 * 24 * time.Hour),
		MetadataRef:  "ipfs://demo/failure",
	})
	if err != nil {
		return err
	}
	w.step("alice opens campaign %d: target 50000 USD, 14 days", c.ID)

	if _, err := w.engine.Donate(ctx, "dave", c.ID, 800); err != nil {
		return err
	}
	if _, err := w.engine.Donate(ctx, "erin", c.ID, 300); err != nil {
		return err
	}
	w.step("dave and erin donate; far from the target")

	w.advance(15 * 24 * time.Hour)
	c, err = w.engine.FailCampaignIfUnsuccessful(ctx, "watchdog", c.ID)
	if err != nil {
		return err
	}
	w.step("deadline passes; anyone may mark it failed (reclaim window until %s)",
		c.ReclaimDeadline.Format("2006-01-02"))

	r, err := w.engine.ClaimRefund(ctx, "dave", c.ID)
	if err != nil {
		return err
	}
	w.step("dave reclaims %d in full: failure waives the refund commission", r.Net)

	w.advance(15 * 24 * time.Hour)
	r, err = w.engine.FinalizeClosureAndWithdraw(ctx, "alice", c.ID)
	if err != nil {
		return err
	}
	w.step("window closed; alice sweeps the unclaimed %d", r.Net)
	return nil
}

// closureStory: the creator winds down early, a donor exits inside
// the window with the refund commission applied.
func (w *demoWorld) closureStory(ctx context.Context) error {
	w.section("3. A campaign the creator winds down")

	c, err := w.engine.CreateCampaign(ctx, "alice", engine.CreateParams{
		Type:         campaign.TypeStartup,
		Asset:        "USD",
		TargetAmount: 20_000,
		EndTime:      w.now.Add(60 * 24 * time.Hour),
		MetadataRef:  "ipfs://demo/closure",
	})
	if err != nil {
		return err
	}
	w.step("alice opens campaign %d: target 20000 USD", c.ID)

	if _, err := w.engine.Donate(ctx, "frank", c.ID, 2000); err != nil {
		return err
	}
	if _, err := w.engine.Donate(ctx, "grace", c.ID, 500); err != nil {
		return err
	}
	w.step("frank donates 2000, grace donates 500")

	c, err = w.engine.InitiateClosure(ctx, "alice", c.ID)
	if err != nil {
		return err
	}
	w.step("alice initiates closure: donors may reclaim until %s",
		c.ReclaimDeadline.Format("2006-01-02"))

	r, err := w.engine.ClaimRefund(ctx, "frank", c.ID)
	if err != nil {
		return err
	}
	w.step("frank exits inside the window: %d back, %d refund commission", r.Net, r.Commission)

	w.now = c.ReclaimDeadline
	r, err = w.engine.FinalizeClosureAndWithdraw(ctx, "alice", c.ID)
	if err != nil {
		return err
	}
	w.step("alice finalizes: %d residue swept, campaign closed", r.Net)
	return nil
}

// printJournal dumps the hash-chained event stream and the value
// movements the gateway recorded.
func (w *demoWorld) printJournal() error {
	journal := w.engine.Journal()
	evs := journal.Query(events.Filter{})

	w.section("Event stream")
	for _, e := range evs {
		fmt.Fprintf(w.out, "  %3d  %-20s campaign=%d  %s  %s\n",
			e.Sequence, e.Kind, e.CampaignID, e.Timestamp.Format("2006-01-02"), shortHash(e.Hash))
	}

	if err := journal.VerifyChain(); err != nil {
		return err
	}
	fmt.Fprintf(w.out, "\n%s✓ hash chain verified%s (head %s)\n", colorGreen, colorReset, shortHash(journal.Head()))

	w.section("Value movements")
	for _, party := range []campaign.Principal{"bob", "carol", "dave", "erin", "frank", "grace"} {
		fmt.Fprintf(w.out, "  %-8s pulled %5d  received %5d\n",
			party, w.recorder.Pulled(party), w.recorder.Pushed(party))
	}
	for _, party := range []campaign.Principal{"alice", "treasury"} {
		fmt.Fprintf(w.out, "  %-8s received %5d\n", party, w.recorder.Pushed(party))
	}
	return nil
}

func (w *demoWorld) section(title string) {
	fmt.Fprintf(w.out, "\n%s%s%s\n", colorBold+colorCyan, title, colorReset)
}

func (w *demoWorld) step(format string, args ...any) {
	fmt.Fprintf(w.out, "  %s•%s %s\n", colorGreen, colorReset, fmt.Sprintf(format, args...))
}

func (w *demoWorld) advance(d time.Duration) {
	w.now = w.now.Add(d)
}

func shortHash(h string) string {
	if len(h) > 16 {
		return h[:16] + "…"
	}
	return h
}

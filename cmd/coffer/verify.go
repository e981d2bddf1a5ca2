package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/Tessera-Labs/coffer/pkg/events"
)

// runVerifyCmd implements `coffer verify <pack.zip>`.
//
// Checks a statement pack without any trust anchor: zip layout, the
// events hash, every event's own hashes, sequence order and the
// manifest signature under the embedded key.
//
// Exit codes:
//
//	0 = pack verified
//	1 = verification failed
//	2 = usage or runtime error
func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var jsonOutput bool
	cmd.BoolVar(&jsonOutput, "json", false, "Output the verification result as JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	if cmd.NArg() != 1 {
		fmt.Fprintln(stderr, "Usage: coffer verify [--json] <pack.zip>")
		return 2
	}
	packPath := cmd.Arg(0)

	data, err := os.ReadFile(packPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: read pack: %v\n", err)
		return 2
	}

	manifest, err := events.VerifyStatementPack(data)
	if err != nil {
		if jsonOutput {
			printJSON(stdout, map[string]any{
				"pack":  packPath,
				"valid": false,
				"error": err.Error(),
			})
		} else {
			fmt.Fprintf(stderr, "✗ Verification failed: %v\n", err)
		}
		return 1
	}

	if jsonOutput {
		printJSON(stdout, map[string]any{
			"pack":        packPath,
			"valid":       true,
			"pack_id":     manifest.PackID,
			"campaign_id": manifest.CampaignID,
			"event_count": manifest.EventCount,
			"chain_head":  manifest.ChainHead,
			"created_at":  manifest.CreatedAt,
		})
	} else {
		fmt.Fprintf(stdout, "%s✓ Statement pack verified%s\n", colorGreen, colorReset)
		fmt.Fprintf(stdout, "  Pack:     %s\n", manifest.PackID)
		fmt.Fprintf(stdout, "  Campaign: %d\n", manifest.CampaignID)
		fmt.Fprintf(stdout, "  Events:   %d (seq %d..%d)\n", manifest.EventCount, manifest.FirstSeq, manifest.LastSeq)
		fmt.Fprintf(stdout, "  Head:     %s\n", manifest.ChainHead)
		fmt.Fprintf(stdout, "  Created:  %s\n", manifest.CreatedAt.Format("2006-01-02 15:04:05 UTC"))
	}
	return 0
}

func printJSON(w io.Writer, v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(data))
}

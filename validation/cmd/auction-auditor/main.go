package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/gavelworks/gavel/journal"
	"github.com/gavelworks/gavel/validation"
)

func main() {
	var (
		journalPath  = flag.String("journal", "", "Path to the audit journal file")
		outputFormat = flag.String("format", "text", "Output format: text or json")
		showPending  = flag.Bool("pending", false, "Also print outstanding pending-payment balances")
		help         = flag.Bool("help", false, "Show usage information")
	)

	flag.Parse()

	if *help {
		showUsage()
		os.Exit(0)
	}

	if *journalPath == "" {
		showUsage()
		fmt.Fprintf(os.Stderr, "\nError: --journal is required\n")
		os.Exit(1)
	}

	frames, err := journal.ReadFile(*journalPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading journal: %v\n", err)
		os.Exit(2)
	}

	result := validation.Replay(frames)

	if *outputFormat == "json" {
		outputJSON(result)
	} else {
		outputText(result)
	}

	if *showPending {
		outputPending(frames)
	}

	if !result.IsValid() {
		os.Exit(1)
	}
	os.Exit(0)
}

func showUsage() {
	fmt.Println("Auction Journal Auditor")
	fmt.Println()
	fmt.Println("Replays an audit journal and re-checks the engine's guarantees:")
	fmt.Println("strictly increasing bids, the one-shot bounded extension, settlement")
	fmt.Println("fee conservation, the pending-payment ledger, and lot lifecycle order.")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  auction-auditor --journal <path> [options]")
	fmt.Println()
	fmt.Println("Required Flags:")
	fmt.Println("  --journal <path>      Audit journal written by the auction daemon")
	fmt.Println()
	fmt.Println("Optional Flags:")
	fmt.Println("  --format <text|json>  Output format (default: text)")
	fmt.Println("  --pending             Print outstanding pending-payment balances")
	fmt.Println("  --help                Show this help message")
	fmt.Println()
	fmt.Println("Exit Codes:")
	fmt.Println("  0 - Replay passed")
	fmt.Println("  1 - Replay found a violated property")
	fmt.Println("  2 - Invalid input or runtime error")
}

func outputText(result *validation.ReplayResult) {
	fmt.Println("Auction Journal Auditor")
	fmt.Println("=======================")
	fmt.Println()
	fmt.Printf("Events replayed: %d across %d lots\n", result.EventsSeen, result.LotsSeen)
	fmt.Println()
	fmt.Println("Summary:")
	fmt.Printf("  Stream Valid:        %v\n", result.StreamValid)
	fmt.Printf("  Lifecycle Valid:     %v\n", result.LifecycleValid)
	fmt.Printf("  Bid Ordering Valid:  %v\n", result.BidOrderingValid)
	fmt.Printf("  Extension Valid:     %v\n", result.ExtensionValid)
	fmt.Printf("  Fee Valid:           %v\n", result.FeeValid)
	fmt.Printf("  Pending Valid:       %v\n", result.PendingValid)

	fmt.Println()
	fmt.Println("Details:")
	for _, detail := range result.ValidationDetails {
		fmt.Printf("  - %s\n", detail)
	}

	fmt.Println()
	fmt.Println("=======================")
	if result.IsValid() {
		fmt.Println("AUDIT: ✓ PASSED")
	} else {
		fmt.Println("AUDIT: ✗ FAILED")
	}
}

func outputJSON(result *validation.ReplayResult) {
	output := map[string]any{
		"valid":              result.IsValid(),
		"stream_valid":       result.StreamValid,
		"lifecycle_valid":    result.LifecycleValid,
		"bid_ordering_valid": result.BidOrderingValid,
		"extension_valid":    result.ExtensionValid,
		"fee_valid":          result.FeeValid,
		"pending_valid":      result.PendingValid,
		"events_seen":        result.EventsSeen,
		"lots_seen":          result.LotsSeen,
		"details":            result.ValidationDetails,
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		os.Exit(2)
	}
	fmt.Println(string(data))
}

func outputPending(frames []journal.Frame) {
	balances, err := validation.OutstandingPending(frames)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error computing pending balances: %v\n", err)
		os.Exit(2)
	}
	fmt.Println()
	fmt.Println("Outstanding pending payments:")
	if len(balances) == 0 {
		fmt.Println("  (none)")
		return
	}
	for payee, amount := range balances {
		fmt.Printf("  %s: %s\n", payee, amount)
	}
}

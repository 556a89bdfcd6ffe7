// Package progress provides progress reporting for call downloads.
//
// This package writes human-readable progress information to stderr,
// including the number of calls done, transfer speed, and ETA.
//
// # Usage
//
//	reporter := progress.NewReporter(progress.Options{
//	    TotalCalls: len(plan),
//	    StartAt:    cursor,
//	})
//
//	reporter.Start()
//	defer reporter.Stop()
//
//	reporter.CallStarted()
//	reporter.CallCompleted(len(audio))
//
// # Output Format
//
//	[scanfetch] Downloading: wss://scanner.example.org/ -> ./calls
//	[scanfetch] Calls: 1520 planned | 310 already done
//	[scanfetch] Progress: 45.2% | 687 / 1520 calls | 48.3 MiB | Speed: 812 KiB/s | ETA: 6m 12s
package progress

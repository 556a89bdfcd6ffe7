// Package downloader runs resumable batch download jobs.
//
// A job is a persisted plan of calls plus a cursor. Run walks the plan from
// the cursor, fetching one call at a time and writing its audio to the output
// location. The cursor advances only after an item was written:
//
//	fetch detail -> validate -> write audio -> persist cursor i+1
//
// so a crash between write and checkpoint downloads that item once more on
// resume and never skips one. When the loop finishes the cursor becomes
// checkpoint.Complete.
//
// # Usage
//
// The caller decides between a fresh job and a resumed one:
//
//	job, err := downloader.New(ctx, store, out, client, params, plan, downloader.Options{})
//	// or
//	job, err := downloader.Resume(ctx, store, out, client, downloader.Options{})
//
//	err = job.Run(ctx)
//
// # Failure
//
// There are no retries. Any error halts the job and is returned as an
// *ItemError naming the failed index; the persisted cursor stays there.
package downloader

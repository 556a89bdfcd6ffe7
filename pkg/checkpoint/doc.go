// Package checkpoint persists batch-download jobs for resume.
//
// A job is stored as two objects in a bucket (usually the output directory,
// opened with gocloud.dev/blob/fileblob):
//
//	{prefix}batch-download-{host}-{timestamp}.config   job document, written once
//	{prefix}progress-index.txt                          cursor, rewritten per item
//
// The job document holds the request parameters and the full query plan. It is
// written with a single [blob.Bucket.WriteAll] call, so a reader never sees a torn
// document, and it is never rewritten: resuming replays exactly the persisted plan.
//
// The progress record holds either the zero-based index of the next plan item to
// process or the literal "done". It is kept separate so that the plan, which can
// be large, is not rewritten after every item.
//
// # Load
//
// [Store.Load] distinguishes:
//   - no job document: [ErrNoJob]
//   - more than one job document: [ErrAmbiguous] (never picks one)
//   - a job document without progress: [ErrMissingProgress]
//   - a completed job: State.Cursor == [Complete]
//
// # Usage
//
//	store := checkpoint.NewStore(bucket)
//	st, err := store.Load(ctx)
//	switch {
//	case errors.Is(err, checkpoint.ErrNoJob):
//	    // start a new job with store.Create
//	case err != nil:
//	    // corrupted or ambiguous, operator must intervene
//	case st.Cursor.Done():
//	    // nothing to resume
//	}
package checkpoint

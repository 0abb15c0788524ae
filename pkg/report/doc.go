// Package report records scenario outcomes and session lifecycle events for
// a harness run and writes them out as artifacts and a console summary.
//
// A Recorder is passed to the session pool as its notifier and to the runner
// as its result sink:
//
//	rec := report.NewRecorder(runID)
//	pool := session.NewPool(driver, flow, session.WithNotifier(rec))
//	...
//	summary := rec.Summary()
//	report.NewArtifactWriter(outDir).WriteAll(summary)
//	fmt.Print(report.RenderConsole(summary, 100))
package report

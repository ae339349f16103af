package thumbnailer

import "fmt"

// Reporter receives progress while a batch runs. Calls arrive from the batch
// goroutine, in item order.
type Reporter interface {
	ItemStarted(index, total int, item WorkItem)
	ItemFinished(index, total int, result CaptureResult)
}

// StatusLine names the item being processed and its ordinal position.
func StatusLine(index, total int, item WorkItem) string {
	return fmt.Sprintf("processing %s (%d/%d)", item.Filename, index+1, total)
}

// Progress is the completed fraction after the item at index finished.
func Progress(done, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(done) / float64(total)
}

type multiReporter []Reporter

// MultiReporter fans out progress to every non-nil reporter.
func MultiReporter(reporters ...Reporter) Reporter {
	var m multiReporter
	for _, r := range reporters {
		if r != nil {
			m = append(m, r)
		}
	}
	return m
}

func (m multiReporter) ItemStarted(index, total int, item WorkItem) {
	for _, r := range m {
		r.ItemStarted(index, total, item)
	}
}

func (m multiReporter) ItemFinished(index, total int, result CaptureResult) {
	for _, r := range m {
		r.ItemFinished(index, total, result)
	}
}

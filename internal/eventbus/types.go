package eventbus

// Event types published by the engine.
const (
	ToastShown    = "toast.shown"
	ToastUpdated  = "toast.updated"
	ToastPinned   = "toast.pinned"
	ToastUnpinned = "toast.unpinned"
	ToastPaused   = "toast.paused"
	ToastResumed  = "toast.resumed"
	ToastSnapBack = "toast.snapback"
	ToastClosing  = "toast.closing"
	ToastRemoved  = "toast.removed"

	HistoryAdded     = "history.added"
	HistoryCleared   = "history.cleared"
	HistoryTruncated = "history.truncated"

	IgnoreChanged = "ignore.changed"
	IngestDropped = "ingest.dropped"

	NoticePosted  = "notice.posted"
	NoticeExpired = "notice.expired"
)

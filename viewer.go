package modeler

// Viewer is the capability set of objects interested in the messages of a
// digital twin. A Peer calls these methods on the goroutine delivering
// messages, which is rarely the UI thread; viewers touching UI state must
// marshal to it on their own.
//
// Viewers are identified by interface equality, so their dynamic type must be
// comparable (pointers are a good choice).
type Viewer interface {
	KnowledgeGraphCommitted(graph KnowledgeGraph)
	// SubmissionStarted and SubmissionAborted complete the lifecycle of a
	// submission. A Peer accepts the corresponding messages without calling
	// them; Notify does call them.
	SubmissionStarted(observation Observation)
	SubmissionAborted(observation Observation, reason string)
	SubmissionFinished(observation Observation)
	ActivityStarted(activity Activity)
	ActivityFinished(activity Activity)
	ScheduleModified(schedule Schedule)
	// Cleanup is called once when the UI element backing the viewer is
	// detached (see Element). Viewers without an element are never cleaned up
	// by the Peer.
	Cleanup()
}

// UnimplementedViewer implements every method of Viewer as a no-op. Embed it in
// viewers interested in a few messages only.
type UnimplementedViewer struct{}

func (UnimplementedViewer) KnowledgeGraphCommitted(KnowledgeGraph) {}
func (UnimplementedViewer) SubmissionStarted(Observation)          {}
func (UnimplementedViewer) SubmissionAborted(Observation, string)  {}
func (UnimplementedViewer) SubmissionFinished(Observation)         {}
func (UnimplementedViewer) ActivityStarted(Activity)               {}
func (UnimplementedViewer) ActivityFinished(Activity)              {}
func (UnimplementedViewer) ScheduleModified(Schedule)              {}
func (UnimplementedViewer) Cleanup()                               {}

package processor

import "github.com/hibiken/asynq"

// SetQueueInfo replaces the queue inspector with one reporting info.
func (m *Manager) SetQueueInfo(info *asynq.QueueInfo, err error) {
	_ = m.inspector.Close()

	m.inspector = fakeInspector{info: info, err: err}
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return f.info, f.err
}

func (fakeInspector) Close() error {
	return nil
}

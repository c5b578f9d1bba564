package lifecycle

import "github.com/bsforge/collector/internal/model"

var TopicTable = Table[model.TopicStatus]{
	model.TopicPending:  {model.TopicApproved, model.TopicRejected, model.TopicExpired},
	model.TopicApproved: {model.TopicUsed, model.TopicRejected},
	model.TopicRejected: {},
	model.TopicUsed:     {},
	model.TopicExpired:  {},
}

var ScriptTable = Table[model.ScriptStatus]{
	model.ScriptGenerated: {model.ScriptReviewed, model.ScriptRejected},
	model.ScriptReviewed:  {model.ScriptApproved, model.ScriptRejected},
	model.ScriptApproved:  {model.ScriptProduced, model.ScriptRejected},
	model.ScriptProduced:  {},
	model.ScriptRejected:  {},
}

var VideoTable = Table[model.VideoStatus]{
	model.VideoGenerating: {model.VideoGenerated, model.VideoFailed},
	model.VideoGenerated:  {model.VideoReviewed, model.VideoFailed},
	model.VideoReviewed:   {model.VideoApproved, model.VideoRejected},
	model.VideoApproved:   {model.VideoUploaded},
	model.VideoFailed:     {model.VideoGenerating},
	model.VideoUploaded:   {model.VideoArchived},
	model.VideoRejected:   {},
	model.VideoArchived:   {},
}

var UploadTable = Table[model.UploadStatus]{
	model.UploadPending:    {model.UploadScheduled, model.UploadFailed},
	model.UploadScheduled:  {model.UploadUploading, model.UploadFailed},
	model.UploadUploading:  {model.UploadProcessing, model.UploadFailed},
	model.UploadProcessing: {model.UploadCompleted, model.UploadFailed},
	model.UploadFailed:     {model.UploadPending},
	model.UploadCompleted:  {},
}

func NewTopicMachine() *Machine[model.TopicStatus] {
	return New(model.TopicPending, TopicTable)
}

func NewScriptMachine() *Machine[model.ScriptStatus] {
	return New(model.ScriptGenerated, ScriptTable)
}

func NewVideoMachine() *Machine[model.VideoStatus] {
	return New(model.VideoGenerating, VideoTable)
}

func NewUploadMachine() *Machine[model.UploadStatus] {
	return New(model.UploadPending, UploadTable)
}

// TopicMachineAt rehydrates a topic machine from a stored status.
func TopicMachineAt(status model.TopicStatus) *Machine[model.TopicStatus] {
	m := NewTopicMachine()
	m.Reset(status)
	return m
}

func IsTopicStatus(s string) bool {
	_, ok := TopicTable[model.TopicStatus(s)]
	return ok
}

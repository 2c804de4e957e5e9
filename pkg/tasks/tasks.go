// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// IndexTask represents an asynchronous document indexing job.
// DocID is computed up front from the filename and byte size, so the
// upload response can return it before indexing completes.
type IndexTask struct {
	DocID      string `json:"doc_id"`
	ObjectName string `json:"object_name"`
	FileName   string `json:"file_name"`
	FileSize   int64  `json:"file_size"`
	OwnerID    uint   `json:"owner_id"`
}

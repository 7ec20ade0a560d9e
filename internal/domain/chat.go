package domain

// Inbound is a text message received from the chat transport
type Inbound struct {
	UserID int64  `json:"user_id" binding:"required"`
	Text   string `json:"text" binding:"required"`
}

// InboundFile is a document received from the chat transport and saved locally
type InboundFile struct {
	UserID   int64  `json:"user_id"`
	Caption  string `json:"caption,omitempty"`
	Path     string `json:"path"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// Choice is a quick-reply option offered to the user
type Choice struct {
	Label   string `json:"label"`
	Command string `json:"command"`
}

// Attachment is a file the transport should deliver to the user
type Attachment struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Format string `json:"format"`
}

// Reply is everything the pipeline wants delivered for one inbound message
type Reply struct {
	Messages    []string     `json:"messages"`
	Choices     []Choice     `json:"choices,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Text builds a reply made of a single message
func Text(msg string) *Reply {
	return &Reply{Messages: []string{msg}}
}

// StoreAnswer is one store's result in a multi-store query
type StoreAnswer struct {
	StoreID   string `json:"store_id"`
	StoreName string `json:"store_name"`
	Answer    string `json:"answer,omitempty"`
	Err       error  `json:"-"`
}

// HasResult reports whether the store produced a non-empty answer without error
func (a StoreAnswer) HasResult() bool {
	return a.Err == nil && a.Answer != ""
}

// Stats represents system statistics
type Stats struct {
	TotalStores    int         `json:"total_stores"`
	TotalDocuments int         `json:"total_documents"`
	Selections     int         `json:"selections"`
	Memory         MemoryStats `json:"memory"`
}

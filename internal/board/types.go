package board

// ContentType is the declared wire type of a persisted or published content item.
type ContentType string

const (
	ContentTypeString ContentType = "STRING"
	ContentTypeFile   ContentType = "FILE"
)

// Conversation is the subset of a conversation record needed to create channels.
type Conversation struct {
	ID                              string `json:"id"`
	ACLURL                          string `json:"aclUrl"`
	KMSResourceObjectURL            string `json:"kmsResourceObjectUrl"`
	DefaultActivityEncryptionKeyURL string `json:"defaultActivityEncryptionKeyUrl,omitempty"`
}

// KMSMessage is the key-management request attached to channel creation.
type KMSMessage struct {
	Method  string   `json:"method"`
	URI     string   `json:"uri"`
	UserIDs []string `json:"userIds"`
	KeyURIs []string `json:"keyUris"`
}

// Channel is the server-side identity of one board.
type Channel struct {
	ChannelID               string         `json:"channelId,omitempty"`
	ChannelURL              string         `json:"channelUrl,omitempty"`
	ACLURLLink              string         `json:"aclUrlLink,omitempty"`
	DefaultEncryptionKeyURL string         `json:"defaultEncryptionKeyUrl,omitempty"`
	KMSMessage              *KMSMessage    `json:"kmsMessage,omitempty"`
	Properties              map[string]any `json:"properties,omitempty"`
}

// Binding returns the realtime routing key for the channel.
func (c Channel) Binding() string {
	return ToBinding(c.ChannelID)
}

// SCR is the secure content reference locating externally stored, encrypted file data.
type SCR struct {
	Loc      string `json:"loc"`
	Key      string `json:"enc,omitempty"`
	IV       string `json:"iv,omitempty"`
	Tag      string `json:"tag,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// FileRef is the plain form of a file-kind item.
type FileRef struct {
	Type        string `json:"type"`
	DisplayName string `json:"displayName"`
	SCR         SCR    `json:"scr"`
}

// Item is one decrypted content item. Exactly one of Payload or File is meaningful:
// File non-nil marks a file-kind item.
type Item struct {
	ContentID        string   `json:"contentId,omitempty"`
	ContentURL       string   `json:"contentUrl,omitempty"`
	Payload          string   `json:"payload,omitempty"`
	File             *FileRef `json:"file,omitempty"`
	EncryptionKeyURL string   `json:"encryptionKeyUrl,omitempty"`
	Device           string   `json:"device,omitempty"`
}

// IsFile reports whether the item carries a file reference.
func (i Item) IsFile() bool {
	return i.File != nil
}

// Content is the encrypted wire form of an item as stored by persistence.
type Content struct {
	ContentID        string      `json:"contentId,omitempty"`
	ContentURL       string      `json:"contentUrl,omitempty"`
	Type             ContentType `json:"type"`
	Payload          string      `json:"payload"`
	EncryptionKeyURL string      `json:"encryptionKeyUrl"`
	Device           string      `json:"device,omitempty"`
}

// FilePayload is the FILE content payload: SCR and display name are independent ciphertexts.
type FilePayload struct {
	Type        string `json:"type"`
	SCR         string `json:"scr"`
	DisplayName string `json:"displayName"`
}

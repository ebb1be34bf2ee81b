package models

import "time"

// Attachment is an uploaded file referenced from an offer (product image or
// quotation document).
type Attachment struct {
	PublicURL  string    `bson:"publicUrl"  json:"publicUrl"`
	ObjectName string    `bson:"objectName" json:"objectName"`
	MimeType   string    `bson:"mimeType"   json:"mimeType"`
	SizeBytes  int64     `bson:"sizeBytes"  json:"sizeBytes"`
	FileName   string    `bson:"fileName"   json:"fileName"`
	UploadedAt time.Time `bson:"uploadedAt" json:"uploadedAt"`
}

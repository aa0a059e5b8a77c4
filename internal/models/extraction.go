package models

// ExtractionResult is the payload returned by the extract collaborator.
type ExtractionResult struct {
	DocumentType       string   `json:"document_type,omitempty"`
	Name               bool     `json:"name"`
	Address            bool     `json:"address"`
	AccountNumber      bool     `json:"accountnumber"`
	AccountNumberValue []string `json:"accountnumber_value,omitempty"`
	Period             string   `json:"period"`
	DocID              string   `json:"docid"`
	Unprocessable      bool     `json:"isUnprocessable,omitempty"`
	CategoryInvalid    bool     `json:"isCategoryInvalid,omitempty"`
	Verified           bool     `json:"verified,omitempty"`
	Source             string   `json:"source,omitempty"`
	GeneratedOn        string   `json:"generated_on,omitempty"`
}

// IsUnprocessable reports whether the document could not be read at all.
func (r *ExtractionResult) IsUnprocessable() bool {
	return r.Unprocessable || r.CategoryInvalid
}

type CommitResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

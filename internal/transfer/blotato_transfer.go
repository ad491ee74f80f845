package transfer

type BlotatoContent struct {
	Text      string   `json:"text"`
	MediaURLs []string `json:"mediaUrls"`
	Platform  string   `json:"platform"`
}

type BlotatoTarget struct {
	TargetType string `json:"targetType"`
}

type BlotatoPost struct {
	AccountID string         `json:"accountId"`
	Content   BlotatoContent `json:"content"`
	Target    BlotatoTarget  `json:"target"`
}

type BlotatoPostRequest struct {
	Post BlotatoPost `json:"post"`
}

type BlotatoSubmission struct {
	PostSubmissionID string `json:"postSubmissionId"`
}

type BlotatoPostStatus struct {
	PostSubmissionID string `json:"postSubmissionId"`
	Status           string `json:"status"`
	PublicURL        string `json:"publicUrl"`
	ErrorMessage     string `json:"errorMessage"`
}

type BlotatoErrorResponse struct {
	Message string `json:"message"`
}

package transfer

type InstagramErrorResponse struct {
	Error struct {
		Message        string `json:"message"`
		Type           string `json:"type"`
		Code           int    `json:"code"`
		ErrorSubcode   int    `json:"error_subcode"`
		IsTransient    bool   `json:"is_transient"`
		ErrorUserTitle string `json:"error_user_title"`
		ErrorUserMsg   string `json:"error_user_msg"`
		FbtraceID      string `json:"fbtrace_id"`
	} `json:"error"`
}

type InstagramIDResponse struct {
	ID string `json:"id"`
}

// InstagramContainerStatus is the state of a media container while
// Instagram ingests the video.
type InstagramContainerStatus struct {
	ID         string `json:"id"`
	StatusCode string `json:"status_code"`
	Status     string `json:"status"`
}

type InstagramMedia struct {
	ID        string `json:"id"`
	Permalink string `json:"permalink"`
}

type InstagramInsightValue struct {
	Value int64 `json:"value"`
}

type InstagramInsight struct {
	Name   string                  `json:"name"`
	Values []InstagramInsightValue `json:"values"`
}

type InstagramInsightsResponse struct {
	Data []InstagramInsight `json:"data"`
}

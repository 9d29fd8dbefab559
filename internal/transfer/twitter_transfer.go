package transfer

// TweetRequest is the body for the v2 create-tweet endpoint.
type TweetRequest struct {
	Text  string      `json:"text"`
	Media *TweetMedia `json:"media,omitempty"`
}

type TweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type TweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

// TwitterErrorBody covers both the v1.1 errors array (numeric codes) and
// the v2 title/detail shape; the classifier reads whichever is present.
type TwitterErrorBody struct {
	Errors []TwitterError `json:"errors"`
	Title  string         `json:"title"`
	Detail string         `json:"detail"`
}

type TwitterError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// MediaUploadResponse is the legacy media endpoint's success body.
type MediaUploadResponse struct {
	MediaID       int64  `json:"media_id"`
	MediaIDString string `json:"media_id_string"`
}

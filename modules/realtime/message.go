package realtime

// 이벤트 이름
const (
	EventProgress  = "generation:progress"
	EventCompleted = "generation:completed"
	EventFailed    = "generation:failed"
)

// 진행 단계
const (
	StageFetchingData     = "fetching_data"
	StageGeneratingCopy   = "generating_copy"
	StageGeneratingImages = "generating_images"
	StageUploading        = "uploading"
	StageSaving           = "saving"
)

// Message - Redis 채널로 오가는 메시지 (user_id로 대상 사용자 지정)
type Message struct {
	UserID string      `json:"user_id"`
	Event  string      `json:"event"`
	Data   interface{} `json:"data"`
}

// Progress - 진행 이벤트 페이로드
type Progress struct {
	VariationID string `json:"variation_id"`
	BatchID     string `json:"batch_id"`
	Stage       string `json:"stage"`
	Percent     int    `json:"percent"`
}

// Completed - 완료 이벤트 페이로드
type Completed struct {
	VariationID string `json:"variation_id"`
	BatchID     string `json:"batch_id"`
	ImageURL    string `json:"image_url"`
	Name        string `json:"name"`
}

// Failed - 실패 이벤트 페이로드
type Failed struct {
	VariationID string `json:"variation_id"`
	BatchID     string `json:"batch_id"`
	Error       string `json:"error"`
}

// clientFrame - 소켓으로 내려가는 형태 (user_id 제외)
type clientFrame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

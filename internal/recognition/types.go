package recognition

// BoundingBox is a face box relative to the submitted image (0-1).
type BoundingBox struct {
	Width  float64 `json:"Width"`
	Height float64 `json:"Height"`
	Left   float64 `json:"Left"`
	Top    float64 `json:"Top"`
}

// Face is a face stored in a collection.
type Face struct {
	FaceID          string      `json:"FaceId"`
	BoundingBox     BoundingBox `json:"BoundingBox"`
	ImageID         string      `json:"ImageId,omitempty"`
	ExternalImageID string      `json:"ExternalImageId,omitempty"`
	UserID          string      `json:"UserId,omitempty"`
	Confidence      float64     `json:"Confidence"`
}

type Gender struct {
	Value      string  `json:"Value"`
	Confidence float64 `json:"Confidence"`
}

type AgeRange struct {
	Low  int `json:"Low"`
	High int `json:"High"`
}

// FaceDetail holds the attributes the service detected for a face.
type FaceDetail struct {
	BoundingBox BoundingBox `json:"BoundingBox"`
	Confidence  float64     `json:"Confidence"`
	Gender      *Gender     `json:"Gender,omitempty"`
	AgeRange    *AgeRange   `json:"AgeRange,omitempty"`
}

// FaceRecord is one face that was added to the collection.
type FaceRecord struct {
	Face       Face       `json:"Face"`
	FaceDetail FaceDetail `json:"FaceDetail"`
}

// UnindexedFace is a detected face the service refused to index.
type UnindexedFace struct {
	Reasons    []string   `json:"Reasons"`
	FaceDetail FaceDetail `json:"FaceDetail"`
}

type indexFacesInput struct {
	CollectionID        string   `json:"CollectionId"`
	ExternalImageID     string   `json:"ExternalImageId"`
	Image               imageRef `json:"Image"`
	MaxFaces            int      `json:"MaxFaces"`
	QualityFilter       string   `json:"QualityFilter"`
	DetectionAttributes []string `json:"DetectionAttributes"`
}

type imageRef struct {
	Bytes []byte `json:"Bytes"`
}

// IndexFacesOutput is the response of IndexFaces.
type IndexFacesOutput struct {
	FaceRecords    []FaceRecord    `json:"FaceRecords"`
	UnindexedFaces []UnindexedFace `json:"UnindexedFaces"`
}

type listFacesInput struct {
	CollectionID string `json:"CollectionId"`
	NextToken    string `json:"NextToken,omitempty"`
	MaxResults   int    `json:"MaxResults,omitempty"`
}

// ListFacesOutput is one page of collection faces.
type ListFacesOutput struct {
	Faces     []Face `json:"Faces"`
	NextToken string `json:"NextToken,omitempty"`
}

package api

import (
	"encoding/base64"
	"errors"
	"image"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/hairtype/internal/capture"
	"github.com/ayusman/hairtype/internal/detector"
	"github.com/ayusman/hairtype/internal/hairtype"
)

// DefaultMaxUpload is the upload size limit used when none is configured.
const DefaultMaxUpload = 10 << 20

// DetectHandler runs single-shot detection on an uploaded image.
type DetectHandler struct {
	service   Service
	maxUpload int64
	log       logrus.FieldLogger
}

// NewDetectHandler creates a new DetectHandler. maxUpload <= 0 selects DefaultMaxUpload.
func NewDetectHandler(service Service, maxUpload int64, log logrus.FieldLogger) *DetectHandler {
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUpload
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &DetectHandler{service: service, maxUpload: maxUpload, log: log.WithField("component", "api")}
}

type categoryResponse struct {
	Category   hairtype.Category `json:"category"`
	Confidence float64           `json:"confidence"`
	Guidance   hairtype.Guidance `json:"guidance"`
}

type detectionResponse struct {
	Category   hairtype.Category `json:"category"`
	Confidence float64           `json:"confidence"`
	Box        [4]int            `json:"box"`
}

type detectResponse struct {
	Categories     []categoryResponse  `json:"categories"`
	Detections     []detectionResponse `json:"detections"`
	AnnotatedImage string              `json:"annotated_image"`
	Width          int                 `json:"width"`
	Height         int                 `json:"height"`
	Threshold      float64             `json:"threshold"`
}

// ServeHTTP handles POST /api/detect with a multipart "image" field and an
// optional "threshold" field. Without a threshold the session threshold is used.
func (h *DetectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Image is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	threshold := h.service.Status().Threshold
	if v := r.FormValue("threshold"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Threshold must be a number")
			return
		}
		threshold = t
	}
	if err := detector.ValidateThreshold(threshold); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Image file is required")
		return
	}
	defer file.Close()

	report, err := h.service.DetectUpload(file, threshold)
	if err != nil {
		switch {
		case errors.Is(err, detector.ErrInvalidThreshold):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, capture.ErrDecode):
			writeError(w, http.StatusBadRequest, "Unsupported or corrupt image")
		default:
			h.log.WithError(err).Error("detection failed")
			writeError(w, http.StatusInternalServerError, "Detection failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, toDetectResponse(report.Set, report.Detections, report.Image, report.Width, report.Height, report.Threshold))
}

func toDetectResponse(set detector.DetectionSet, detections []detector.Detection, img []byte, width, height int, threshold float64) detectResponse {
	entries := set.Entries()
	guidance := set.Guidance()

	categories := make([]categoryResponse, len(entries))
	for i, e := range entries {
		categories[i] = categoryResponse{
			Category:   e.Category,
			Confidence: e.Confidence,
			Guidance:   guidance[i],
		}
	}

	boxes := make([]detectionResponse, len(detections))
	for i, d := range detections {
		boxes[i] = detectionResponse{
			Category:   d.Category,
			Confidence: d.Confidence,
			Box:        box(d.Region),
		}
	}

	return detectResponse{
		Categories:     categories,
		Detections:     boxes,
		AnnotatedImage: base64.StdEncoding.EncodeToString(img),
		Width:          width,
		Height:         height,
		Threshold:      threshold,
	}
}

func box(r image.Rectangle) [4]int {
	return [4]int{r.Min.X, r.Min.Y, r.Max.X, r.Max.Y}
}

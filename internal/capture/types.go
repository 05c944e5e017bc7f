// Package capture holds the data model shared across every pipeline stage
// and the orchestrator: jobs, frames, quadrilaterals, captures, pages, and
// the published manifest.
package capture

import "time"

// State is the top-level lifecycle state of a Job.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateDone      State = "done"
	StateError     State = "error"
	StateCancelled State = "cancelled"
)

// Step is the current pipeline stage within a running Job.
type Step string

const (
	StepInitializing Step = "initializing"
	StepExtracting   Step = "extracting"
	StepDetecting    Step = "detecting"
	StepRectifying   Step = "rectifying"
	StepStitching    Step = "stitching"
	StepPageCluster  Step = "page_cluster"
	StepUpscaling    Step = "upscaling"
	StepExporting    Step = "exporting"
	StepDone         Step = "done"
)

// LayoutHint describes the shape of the capture region and selects which
// RoiTracker fallback geometry and Stitcher mode apply.
type LayoutHint string

const (
	LayoutBottomBar  LayoutHint = "bottom_bar"
	LayoutFullScroll LayoutHint = "full_scroll"
	LayoutPageTurn   LayoutHint = "page_turn"
)

// Sensitivity is a discrete sampling/dedupe setting, mapped to concrete
// numeric parameters by the component that consumes it.
type Sensitivity string

const (
	SensitivityLow       Sensitivity = "low"
	SensitivityMedium    Sensitivity = "medium"
	SensitivityHigh      Sensitivity = "high"
	SensitivityAggressive Sensitivity = "aggressive"
	SensitivityNormal    Sensitivity = "normal"
	SensitiveFine        Sensitivity = "sensitive"
)

// TrackEvent is emitted by RoiTracker alongside each frame's stabilized quad.
type TrackEvent string

const (
	EventNone           TrackEvent = "none"
	EventPageTransition TrackEvent = "page_transition"
	EventConfidenceLow  TrackEvent = "confidence_low"
)

// SourceDescriptor names where the input video came from. Exactly one of
// LocalPath / FetchedPath is populated.
type SourceDescriptor struct {
	LocalPath   string `json:"local_path,omitempty"`
	FetchedPath string `json:"fetched_path,omitempty"`
}

// Path returns whichever of LocalPath/FetchedPath is set.
func (s SourceDescriptor) Path() string {
	if s.FetchedPath != "" {
		return s.FetchedPath
	}
	return s.LocalPath
}

// ExtractOptions configures FrameSource.
type ExtractOptions struct {
	Sensitivity Sensitivity `json:"sensitivity"`
	StartSec    *float64    `json:"start_sec,omitempty"`
	EndSec      *float64    `json:"end_sec,omitempty"`
}

// DetectOptions configures RoiTracker.
type DetectOptions struct {
	ROI        Quadrilateral `json:"roi"`
	LayoutHint LayoutHint    `json:"layout_hint"`
}

// StitchOptions configures Stitcher.
type StitchOptions struct {
	Enable           bool        `json:"enable"`
	OverlapThreshold float64     `json:"overlap_threshold"`
	LayoutHint       LayoutHint  `json:"layout_hint"`
	DedupeLevel      Sensitivity `json:"dedupe_level"`
}

// UpscaleOptions configures Upscaler.
type UpscaleOptions struct {
	Enable  bool    `json:"enable"`
	Factor  float64 `json:"factor"`
	GPUOnly bool    `json:"gpu_only"`
}

// ExportOptions configures PageComposer.
type ExportOptions struct {
	Formats         []string `json:"formats"`
	IncludeRawFrames bool    `json:"include_raw_frames"`
}

// Options bundles every per-stage option bag submitted with a job.
type Options struct {
	Extract ExtractOptions `json:"extract"`
	Detect  DetectOptions  `json:"detect"`
	Stitch  StitchOptions  `json:"stitch"`
	Upscale UpscaleOptions `json:"upscale"`
	Export  ExportOptions  `json:"export"`
}

// Job is the unit of work owned exclusively by the orchestrator.
type Job struct {
	ID          string           `json:"id"`
	Workspace   string           `json:"workspace"`
	Source      SourceDescriptor `json:"source"`
	Options     Options          `json:"options"`
	State       State            `json:"state"`
	Step        Step             `json:"step"`
	Progress    float64          `json:"progress"`
	Message     string           `json:"message"`
	ErrorCode   Code             `json:"error_code,omitempty"`
	ErrorDetail string           `json:"error_detail,omitempty"`
	Manifest    Manifest         `json:"manifest"`
	CreatedAt   time.Time        `json:"created_at"`
	StartedAt   time.Time        `json:"started_at,omitempty"`
	FinishedAt  time.Time        `json:"finished_at,omitempty"`
}

// IsTerminal reports whether the job has reached one of its three terminal
// states and will never transition again.
func (j *Job) IsTerminal() bool {
	return j.State == StateDone || j.State == StateError || j.State == StateCancelled
}

// Copy returns a deep-enough copy of the job safe to hand to a status reader
// without racing the worker goroutine that owns the original.
func (j *Job) Copy() *Job {
	cp := *j
	cp.Manifest = j.Manifest.Copy()
	return &cp
}

// Frame is a decoded RGB image, alive only between FrameSource and RoiTracker.
type Frame struct {
	Index  int
	PTSSec float64
	Image  RGBImage
}

// RGBImage is a minimal pixel-buffer-plus-dimensions carrier, kept separate
// from image.Image so pipeline stages can pass buffers between child
// processes and in-process code without repeated decode/encode round trips.
type RGBImage struct {
	Width  int
	Height int
	Pix    []byte // 3 bytes per pixel, row-major, no padding
}

// Quadrilateral is four points in source-frame pixel coordinates, ordered
// TL, TR, BR, BL.
type Quadrilateral struct {
	TL Point `json:"tl"`
	TR Point `json:"tr"`
	BR Point `json:"br"`
	BL Point `json:"bl"`
}

// Point is an (x, y) pixel coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// RectifiedCapture is a warped rectangular image produced from one frame.
type RectifiedCapture struct {
	FrameIndex int
	Hash       uint64
	BBox       Rect
	Image      RGBImage
	Event      TrackEvent
}

// Rect is an axis-aligned pixel rectangle, [Min, Max).
type Rect struct {
	MinX, MinY, MaxX, MaxY int
}

// Width returns MaxX - MinX.
func (r Rect) Width() int { return r.MaxX - r.MinX }

// Height returns MaxY - MinY.
func (r Rect) Height() int { return r.MaxY - r.MinY }

// Area returns the rectangle's pixel area.
func (r Rect) Area() int { return r.Width() * r.Height() }

// PageCandidate is a proposed output page prior to composition.
type PageCandidate struct {
	FrameIndex    int    `json:"frame_index,omitempty"`
	FrameIndices  []int  `json:"frame_indices,omitempty"`
	PageClusterID int    `json:"page_cluster_id,omitempty"`
	Image         RGBImage
	CapturePath   string `json:"capture_path,omitempty"`
}

// RuntimeInfo is the manifest's runtime block. No stage fills it in, so it
// is serialized with empty fields; GET /api/runtime builds its own report.
type RuntimeInfo struct {
	OverallMode       string `json:"overall_mode"`
	FFmpegMode        string `json:"ffmpeg_mode"`
	OpenCVMode        string `json:"opencv_mode"`
	UpscaleEngineHint string `json:"upscale_engine_hint"`
	GPUName           string `json:"gpu_name,omitempty"`
	CPUName           string `json:"cpu_name,omitempty"`
}

// ReviewExportInfo records the result of the most recent review_export pass.
type ReviewExportInfo struct {
	KeptCount int `json:"kept_count"`
}

// Manifest is the published record of a job's output files and metadata.
type Manifest struct {
	OutputDir        string            `json:"output_dir"`
	Images           []string          `json:"images"`
	ReviewCandidates []string          `json:"review_candidates"`
	PDF              string            `json:"pdf,omitempty"`
	SourceResolution Dimensions        `json:"source_resolution"`
	UpscaledFrames   []int             `json:"upscaled_frames"`
	Runtime          RuntimeInfo       `json:"runtime"`
	ReviewExport     *ReviewExportInfo `json:"review_export,omitempty"`

	// SourceDurationSeconds and OutputBytes feed the queue's cumulative
	// processed-seconds/bytes counters once the job reaches StateDone.
	SourceDurationSeconds float64 `json:"source_duration_seconds,omitempty"`
	OutputBytes           int64   `json:"output_bytes,omitempty"`
}

// Copy returns a manifest with its own backing slices, safe to hand out
// concurrently with the worker goroutine continuing to append to the
// original.
func (m Manifest) Copy() Manifest {
	cp := m
	cp.Images = append([]string(nil), m.Images...)
	cp.ReviewCandidates = append([]string(nil), m.ReviewCandidates...)
	cp.UpscaledFrames = append([]int(nil), m.UpscaledFrames...)
	return cp
}

// Dimensions is a width/height pair in pixels.
type Dimensions struct {
	W int `json:"w"`
	H int `json:"h"`
}

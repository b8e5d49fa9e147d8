package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/your-org/classcam/internal/engine"
	"github.com/your-org/classcam/internal/enrollment"
	"github.com/your-org/classcam/internal/facedb"
	"github.com/your-org/classcam/internal/tracking"
	"github.com/your-org/classcam/internal/vision"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	NATS       NATSConfig       `yaml:"nats"`
	MinIO      MinIOConfig      `yaml:"minio"`
	Vision     VisionConfig     `yaml:"vision"`
	Hands      HandsConfig      `yaml:"hands"`
	Matching   MatchingConfig   `yaml:"matching"`
	Tracking   TrackingConfig   `yaml:"tracking"`
	Enrollment EnrollmentConfig `yaml:"enrollment"`
	Capture    CaptureConfig    `yaml:"capture"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Port        int           `yaml:"port"`
	APIKey      string        `yaml:"api_key"`
	SessionIdle time.Duration `yaml:"session_idle"` // 0 keeps sessions until cleared
}

// Snapshot backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendMinIO    = "minio"
)

// DatabaseConfig selects where the face database snapshot lives.
type DatabaseConfig struct {
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`         // file backend
	SnapshotKey string `yaml:"snapshot_key"` // minio backend object key
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// NATSConfig is optional; an empty URL runs without the queue.
type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// HandsConfig controls raised-hand detection. An empty Model disables it.
type HandsConfig struct {
	Model           string        `yaml:"model"` // file in vision.models_dir
	MinScore        float64       `yaml:"min_score"`
	Cooldown        time.Duration `yaml:"cooldown"`
	RequireOpenPalm bool          `yaml:"require_open_palm"`
}

type VisionConfig struct {
	ModelsDir          string  `yaml:"models_dir"`
	ONNXLibrary        string  `yaml:"onnx_library"`
	DetectionThreshold float64 `yaml:"detection_threshold"`
	InputSize          int     `yaml:"input_size"`
}

type MatchingConfig struct {
	Threshold       float64 `yaml:"threshold"`
	IndexMinSize    int     `yaml:"index_min_size"`
	IndexCandidates int     `yaml:"index_candidates"`
}

type TrackingConfig struct {
	MaxDisappeared  int     `yaml:"max_disappeared"`
	MatchThreshold  float64 `yaml:"match_threshold"`
	ProvisionalIoU  float64 `yaml:"provisional_iou"`
	IoUWeight       float64 `yaml:"iou_weight"`
	EmbeddingWeight float64 `yaml:"embedding_weight"`
	Smoothing       float64 `yaml:"smoothing"`
	Algorithm       string  `yaml:"algorithm"`
}

type EnrollmentConfig struct {
	SamplesPerAngle     int                   `yaml:"samples_per_angle"`
	MinQuality          float64               `yaml:"min_quality"`
	RejectMultipleFaces bool                  `yaml:"reject_multiple_faces"`
	QualityWeights      vision.QualityWeights `yaml:"quality_weights"`
}

// CameraConfig is one capture source. Type is rtsp, http, file or youtube.
type CameraConfig struct {
	ID      string `yaml:"id"`
	URL     string `yaml:"url"`
	Type    string `yaml:"type"`
	FPS     int    `yaml:"fps"`
	Section string `yaml:"section"`
}

type CaptureConfig struct {
	Cameras        []CameraConfig `yaml:"cameras"`
	FrameWidth     int            `yaml:"frame_width"`
	FrameRetention time.Duration  `yaml:"frame_retention"`
	Workers        int            `yaml:"workers"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Backend {
	case BackendFile, BackendPostgres, BackendMinIO:
	default:
		return fmt.Errorf("unknown database backend %q", c.Database.Backend)
	}
	switch tracking.Algorithm(c.Tracking.Algorithm) {
	case tracking.AlgorithmGreedy, tracking.AlgorithmHungarian:
	default:
		return fmt.Errorf("unknown tracking algorithm %q", c.Tracking.Algorithm)
	}
	seen := make(map[string]bool, len(c.Capture.Cameras))
	for _, cam := range c.Capture.Cameras {
		if cam.ID == "" || cam.URL == "" {
			return fmt.Errorf("camera needs id and url: %+v", cam)
		}
		if seen[cam.ID] {
			return fmt.Errorf("duplicate camera id %q", cam.ID)
		}
		seen[cam.ID] = true
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Backend == "" {
		cfg.Database.Backend = BackendFile
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/face_database.msgpack"
	}
	if cfg.Database.SnapshotKey == "" {
		cfg.Database.SnapshotKey = "facedb/snapshot.msgpack"
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = 5432
	}
	if cfg.Postgres.MaxConns == 0 {
		cfg.Postgres.MaxConns = 10
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = "classcam"
	}
	if cfg.Vision.ModelsDir == "" {
		cfg.Vision.ModelsDir = "models"
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.3
	}
	if cfg.Vision.InputSize == 0 {
		cfg.Vision.InputSize = 640
	}
	if cfg.Hands.MinScore == 0 {
		cfg.Hands.MinScore = 0.5
	}
	if cfg.Hands.Cooldown == 0 {
		cfg.Hands.Cooldown = 10 * time.Second
	}
	if cfg.Matching.Threshold == 0 {
		cfg.Matching.Threshold = 0.3
	}
	if cfg.Matching.IndexCandidates == 0 {
		cfg.Matching.IndexCandidates = 8
	}
	if cfg.Tracking.MaxDisappeared == 0 {
		cfg.Tracking.MaxDisappeared = 30
	}
	if cfg.Tracking.MatchThreshold == 0 {
		cfg.Tracking.MatchThreshold = 0.3
	}
	if cfg.Tracking.ProvisionalIoU == 0 {
		cfg.Tracking.ProvisionalIoU = 0.3
	}
	if cfg.Tracking.IoUWeight == 0 && cfg.Tracking.EmbeddingWeight == 0 {
		cfg.Tracking.IoUWeight = 0.7
		cfg.Tracking.EmbeddingWeight = 0.3
	}
	if cfg.Tracking.Smoothing == 0 {
		cfg.Tracking.Smoothing = 0.3
	}
	if cfg.Tracking.Algorithm == "" {
		cfg.Tracking.Algorithm = string(tracking.AlgorithmGreedy)
	}
	if cfg.Enrollment.SamplesPerAngle == 0 {
		cfg.Enrollment.SamplesPerAngle = 5
	}
	if cfg.Enrollment.QualityWeights == (vision.QualityWeights{}) {
		cfg.Enrollment.QualityWeights = vision.DefaultQualityWeights()
	}
	if cfg.Capture.FrameWidth == 0 {
		cfg.Capture.FrameWidth = 640
	}
	if cfg.Capture.FrameRetention == 0 {
		cfg.Capture.FrameRetention = time.Hour
	}
	if cfg.Capture.Workers == 0 {
		cfg.Capture.Workers = 1
	}
	for i := range cfg.Capture.Cameras {
		if cfg.Capture.Cameras[i].FPS == 0 {
			cfg.Capture.Cameras[i].FPS = 5
		}
		if cfg.Capture.Cameras[i].Type == "" {
			cfg.Capture.Cameras[i].Type = "rtsp"
		}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CLASSCAM_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CLASSCAM_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("CLASSCAM_DB_BACKEND"); v != "" {
		cfg.Database.Backend = v
	}
	if v := os.Getenv("CLASSCAM_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("CLASSCAM_PG_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("CLASSCAM_PG_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("CLASSCAM_PG_NAME"); v != "" {
		cfg.Postgres.Name = v
	}
	if v := os.Getenv("CLASSCAM_PG_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("CLASSCAM_PG_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("CLASSCAM_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("CLASSCAM_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("CLASSCAM_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("CLASSCAM_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("CLASSCAM_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("CLASSCAM_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("CLASSCAM_ONNX_LIBRARY"); v != "" {
		cfg.Vision.ONNXLibrary = v
	}
	if v := os.Getenv("CLASSCAM_MATCH_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Matching.Threshold = f
		}
	}
	if v := os.Getenv("CLASSCAM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Analyzer returns the ONNX analyzer settings.
func (c *Config) Analyzer() vision.AnalyzerConfig {
	return vision.AnalyzerConfig{
		ModelsDir:     c.Vision.ModelsDir,
		MinConfidence: float32(c.Vision.DetectionThreshold),
		InputSize:     c.Vision.InputSize,
	}
}

// HandModelPath returns the hand landmark model path, or "" when raised-hand
// detection is off.
func (c *Config) HandModelPath() string {
	if c.Hands.Model == "" {
		return ""
	}
	return filepath.Join(c.Vision.ModelsDir, c.Hands.Model)
}

// Participation returns the raised-hand settings.
func (c *Config) Participation() engine.ParticipationConfig {
	p := engine.DefaultParticipationConfig()
	p.Cooldown = c.Hands.Cooldown
	p.RequireOpenPalm = c.Hands.RequireOpenPalm
	return p
}

// Matcher returns the identity matcher settings.
func (c *Config) Matcher() facedb.MatcherConfig {
	return facedb.MatcherConfig{
		Threshold:       float32(c.Matching.Threshold),
		IndexMinSize:    c.Matching.IndexMinSize,
		IndexCandidates: c.Matching.IndexCandidates,
	}
}

// Tracker returns the per-session tracker settings.
func (c *Config) Tracker() tracking.Config {
	return tracking.Config{
		MaxDisappeared:  c.Tracking.MaxDisappeared,
		MatchThreshold:  float32(c.Tracking.MatchThreshold),
		IoUWeight:       float32(c.Tracking.IoUWeight),
		EmbeddingWeight: float32(c.Tracking.EmbeddingWeight),
		Smoothing:       float32(c.Tracking.Smoothing),
		Algorithm:       tracking.Algorithm(c.Tracking.Algorithm),
	}
}

// Enroller returns the enrollment settings.
func (c *Config) Enroller() enrollment.Config {
	return enrollment.Config{
		SamplesPerAngle:     c.Enrollment.SamplesPerAngle,
		MinQuality:          c.Enrollment.MinQuality,
		RejectMultipleFaces: c.Enrollment.RejectMultipleFaces,
		Weights:             c.Enrollment.QualityWeights,
	}
}

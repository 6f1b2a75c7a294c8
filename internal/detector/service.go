package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/hairtype/internal/hairtype"
)

// ServiceIdleTimeout is how long the helper process may sit unused before it is stopped.
const ServiceIdleTimeout = 30 * time.Second

const serviceScript = "hair_service.py"

// ServiceDetector implements Detector using a Python helper process that runs
// the trained ultralytics weights. Frames are sent as length-prefixed JPEG on
// stdin and detections come back as one JSON object per line.
type ServiceDetector struct {
	config     Config
	scriptPath string
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stdout     *bufio.Reader
	mu         sync.Mutex
	started    bool
	lastUsed   time.Time
	idleTimer  *time.Timer
}

// NewServiceDetector creates a new helper-process detector.
// The Python process is started lazily on first prediction.
func NewServiceDetector(config Config) (*ServiceDetector, error) {
	scriptPath := config.ScriptPath
	if scriptPath == "" {
		scriptPath = findServiceScript()
	}
	if scriptPath == "" {
		return nil, fmt.Errorf("%s not found", serviceScript)
	}
	if _, err := os.Stat(scriptPath); err != nil {
		return nil, fmt.Errorf("service script: %w", err)
	}

	return &ServiceDetector{
		config:     config,
		scriptPath: scriptPath,
	}, nil
}

// Predict sends frame to the helper and returns its detections at or above threshold.
func (d *ServiceDetector) Predict(frame *gocv.Mat, threshold float64) ([]Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureStarted(); err != nil {
		return nil, err
	}

	data, err := EncodeJPEG(frame)
	if err != nil {
		return nil, err
	}

	// Header: 4 bytes big-endian payload length, 4 bytes threshold in
	// thousandths. The threshold is rounded down so the helper never drops a
	// detection that Filter below would keep.
	header := make([]byte, 8)
	binary.BigEndian.PutUint32(header[:4], uint32(len(data)))
	binary.BigEndian.PutUint32(header[4:], helperThreshold(threshold))

	if _, err := d.stdin.Write(header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	if _, err := d.stdin.Write(data); err != nil {
		return nil, fmt.Errorf("write data: %w", err)
	}

	line, err := d.stdout.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var response struct {
		Detections []jsonDetection `json:"detections"`
		Error      string          `json:"error"`
	}
	if err := json.Unmarshal([]byte(line), &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("service: %s", response.Error)
	}

	result := make([]Detection, 0, len(response.Detections))
	for _, jd := range response.Detections {
		result = append(result, jd.toDetection())
	}

	d.lastUsed = time.Now()
	d.resetIdleTimer()

	return Filter(result, threshold), nil
}

// Close shuts down the Python process.
func (d *ServiceDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

func (d *ServiceDetector) ensureStarted() error {
	if d.started {
		return nil
	}

	// Use virtual environment Python if available
	pythonPath := findVenvPython()
	if pythonPath == "" {
		pythonPath = "python3"
	}

	d.cmd = exec.Command(pythonPath, d.args()...)

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("start detection service: %w", err)
	}

	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.started = true
	d.lastUsed = time.Now()

	return nil
}

// args returns the helper's command line after the interpreter.
func (d *ServiceDetector) args() []string {
	args := []string{d.scriptPath}
	if d.config.ServiceModel != "" {
		args = append(args, "--model", d.config.ServiceModel)
	}
	return args
}

// helperThreshold converts t to the thousandths sent to the helper.
func helperThreshold(t float64) uint32 {
	return uint32(math.Floor(t * 1000))
}

func (d *ServiceDetector) shutdown() error {
	if !d.started {
		return nil
	}

	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}

	if d.stdin != nil {
		d.stdin.Close()
	}

	var err error
	if d.cmd != nil {
		err = d.cmd.Wait()
	}
	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil

	return err
}

func (d *ServiceDetector) resetIdleTimer() {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(ServiceIdleTimeout, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.shutdown()
	})
}

func findServiceScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		filepath.Join("scripts", serviceScript),
		filepath.Join("..", "scripts", serviceScript),
		filepath.Join(execDir, "scripts", serviceScript),
		filepath.Join(os.Getenv("HOME"), ".hairtype", "scripts", serviceScript),
	}

	return firstExisting(candidates)
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".hairtype/venv/bin/python"),
	}

	return firstExisting(candidates)
}

func firstExisting(candidates []string) string {
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// jsonDetection is one detection as reported by the helper process.
type jsonDetection struct {
	Label      string     `json:"label"`
	Confidence float64    `json:"confidence"`
	Box        [4]float64 `json:"box"` // x1, y1, x2, y2 in pixels
}

func (j jsonDetection) toDetection() Detection {
	c, _ := hairtype.Parse(j.Label)
	if !c.Known() {
		c = hairtype.Category(j.Label)
	}
	return Detection{
		Category:   c,
		Confidence: j.Confidence,
		Region:     image.Rect(int(j.Box[0]), int(j.Box[1]), int(j.Box[2]), int(j.Box[3])),
	}
}

package detectors

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// LoadClasses reads one class name per line. Surrounding whitespace and blank
// lines are dropped.
func LoadClasses(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open classes file %s", path)
	}
	defer f.Close()

	var classes []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if name := strings.TrimSpace(scanner.Text()); name != "" {
			classes = append(classes, name)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read classes file %s", path)
	}
	if len(classes) == 0 {
		return nil, errors.Errorf("classes file %s is empty", path)
	}
	return classes, nil
}

// className returns the name of class id, or "class_<id>" when it's unknown.
func className(classes []string, id int) string {
	if id >= 0 && id < len(classes) {
		return classes[id]
	}
	return "class_" + strconv.Itoa(id)
}

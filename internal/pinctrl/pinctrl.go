package pinctrl

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

type PinState struct {
	Pin     int
	Mode    string // e.g., "ip", "op", "no"
	Pull    string // e.g., "pu", "pd", "pn"
	Drive   string // e.g., "dh", "dl", ""
	Level   string // e.g., "hi", "lo", "--"
	Comment string // full comment, typically includes // GPIO#
}

func (p PinState) String() string {
	return fmt.Sprintf("GPIO%d mode=%s pull=%s drive=%s level=%s", p.Pin, p.Mode, p.Pull, p.Drive, p.Level)
}

var pinLineRegex = regexp.MustCompile(`^\s*(\d+):\s+(\S+)\s+(.*?)\s+\|\s+(\S+)\s+//\s+(.*GPIO(\d+).*)$`)

// command runs pinctrl; swapped in tests.
var command = func(args ...string) ([]byte, error) {
	return exec.Command("pinctrl", args...).Output()
}

// PinNumber turns a periph pin name ("GPIO18") or a bare BCM number into the
// number pinctrl expects.
func PinNumber(name string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(name)), "GPIO"))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("not a GPIO pin name: %q", name)
	}
	return n, nil
}

// ReadAllPins returns the parsed result of `pinctrl get`, mapping each GPIO pin number to its PinState
func ReadAllPins() (map[int]PinState, error) {
	out, err := command("get")
	if err != nil {
		return nil, fmt.Errorf("failed to execute pinctrl get: %w", err)
	}
	return parseGetOutput(bytes.NewReader(out))
}

func parseGetOutput(r io.Reader) (map[int]PinState, error) {
	result := make(map[int]PinState)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		matches := pinLineRegex.FindStringSubmatch(scanner.Text())
		if len(matches) != 7 {
			continue
		}

		index, _ := strconv.Atoi(matches[1])
		state := PinState{
			Pin:     index,
			Mode:    matches[2],
			Level:   matches[4],
			Comment: matches[5],
		}

		for _, opt := range strings.Fields(matches[3]) {
			if state.Pull == "" && (opt == "pu" || opt == "pd" || opt == "pn") {
				state.Pull = opt
			} else if state.Drive == "" && (opt == "dh" || opt == "dl") {
				state.Drive = opt
			}
		}

		result[state.Pin] = state
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error scanning pinctrl output: %w", err)
	}
	return result, nil
}

// ReadPins returns the states of the named pins, keyed by name.
func ReadPins(names ...string) (map[string]PinState, error) {
	all, err := ReadAllPins()
	if err != nil {
		return nil, err
	}
	out := make(map[string]PinState, len(names))
	for _, name := range names {
		n, err := PinNumber(name)
		if err != nil {
			return nil, err
		}
		state, ok := all[n]
		if !ok {
			return nil, fmt.Errorf("pin %d not found in pinctrl output", n)
		}
		out[name] = state
	}
	return out, nil
}

// ReadLevel performs a fast read of the logic level of a pin using `pinctrl lev <pin>`
func ReadLevel(pin int) (bool, error) {
	out, err := command("lev", fmt.Sprint(pin))
	if err != nil {
		return false, fmt.Errorf("failed to read level for pin %d: %w", pin, err)
	}
	return parseLevel(string(out))
}

func parseLevel(output string) (bool, error) {
	trimmed := strings.TrimSpace(output)
	switch trimmed {
	case "1":
		return true, nil
	case "0":
		return false, nil
	default:
		return false, fmt.Errorf("unexpected output from pinctrl lev: %q", trimmed)
	}
}

// SetCommand renders the pinctrl invocation for a pin, e.g.
// SetCommand(18, "op", "pn", "dl") is "pinctrl set 18 op pn dl".
func SetCommand(pin int, opts ...string) string {
	return strings.Join(append([]string{"pinctrl", "set", fmt.Sprint(pin)}, opts...), " ")
}

// SetPin applies one or more pinctrl set options to the specified GPIO pin
// Example: SetPin(10, "op", "pn", "dh") sets pin 10 as output, no pull, drive high
func SetPin(pin int, opts ...string) error {
	args := append([]string{"set", fmt.Sprint(pin)}, opts...)
	if out, err := command(args...); err != nil {
		return fmt.Errorf("pinctrl set failed: %s (output: %s)", err, string(out))
	}
	return nil
}

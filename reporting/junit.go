package reporting

import (
	"encoding/xml"
	"fmt"
	"os"
	"time"

	"github.com/acarl005/stripansi"

	"github.com/ethereum-optimism/infra/op-unit/types"
)

type junitTestSuites struct {
	XMLName  xml.Name         `xml:"testsuites"`
	Name     string           `xml:"name,attr"`
	Tests    int              `xml:"tests,attr"`
	Disabled int              `xml:"disabled,attr"`
	Errors   int              `xml:"errors,attr"`
	Failures int              `xml:"failures,attr"`
	Skipped  int              `xml:"skipped,attr"`
	Time     string           `xml:"time,attr"`
	Suites   []junitTestSuite `xml:"testsuite"`
}

type junitTestSuite struct {
	Name     string          `xml:"name,attr"`
	Tests    int             `xml:"tests,attr"`
	Disabled int             `xml:"disabled,attr"`
	Errors   int             `xml:"errors,attr"`
	Failures int             `xml:"failures,attr"`
	Skipped  int             `xml:"skipped,attr"`
	Time     string          `xml:"time,attr"`
	Cases    []junitTestCase `xml:"testcase"`
}

type junitTestCase struct {
	Name    string        `xml:"name,attr"`
	Status  string        `xml:"status,attr"`
	Time    string        `xml:"time,attr"`
	Failure *junitMessage `xml:"failure,omitempty"`
	Error   *junitMessage `xml:"error,omitempty"`
	Skipped *junitMessage `xml:"skipped,omitempty"`
}

type junitMessage struct {
	Message string `xml:"message,attr"`
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}

func (r *Reporter) junitDocument() junitTestSuites {
	total := r.Totals()
	doc := junitTestSuites{
		Name:     r.opts.Name,
		Tests:    total.Size,
		Disabled: total.Disabled,
		Errors:   total.Errored,
		Failures: total.Failed,
		Skipped:  total.Skipped(),
		Time:     seconds(r.Elapsed()),
	}

	for _, s := range r.reg.Suites() {
		c, _ := r.Suite(s.Name())
		suite := junitTestSuite{
			Name:     s.Name(),
			Tests:    c.Size,
			Disabled: c.Disabled,
			Errors:   c.Errored,
			Failures: c.Failed,
			Skipped:  c.Skipped(),
			Time:     seconds(c.Duration),
		}
		for _, tc := range s.Tests() {
			res, _ := r.Result(tc.ID())
			suite.Cases = append(suite.Cases, junitCase(res))
		}
		doc.Suites = append(doc.Suites, suite)
	}
	return doc
}

func junitCase(res types.TestResult) junitTestCase {
	tc := junitTestCase{
		Name:   res.ID.Test,
		Status: string(res.Status),
		Time:   seconds(res.Duration),
	}
	msg := &junitMessage{Message: stripansi.Strip(res.Message)}
	switch res.Status {
	case types.TestStatusFailed:
		tc.Failure = msg
	case types.TestStatusErrored:
		tc.Error = msg
	case types.TestStatusDisabled:
		tc.Status = string(types.TestStatusNotRun)
		tc.Skipped = &junitMessage{Message: "disabled"}
	case types.TestStatusNotRun:
		if msg.Message == "" {
			msg.Message = "not run"
		}
		tc.Skipped = msg
	}
	return tc
}

// WriteJUnit writes the results as JUnit XML to path
func (r *Reporter) WriteJUnit(path string) error {
	data, err := xml.MarshalIndent(r.junitDocument(), "", "\t")
	if err != nil {
		return fmt.Errorf("encoding junit report: %w", err)
	}
	data = append([]byte(xml.Header), data...)
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing junit report: %w", err)
	}
	r.log.Info("Wrote JUnit report", "path", path)
	return nil
}

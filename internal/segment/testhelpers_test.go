package segment

import "os"

// logFileBytesForTest and overwriteLogForTest exist only to let tests
// simulate on-disk corruption without reaching into unexported file handles
// from outside the package.
func (s *Segment) logFileBytesForTest() ([]byte, error) {
	return os.ReadFile(s.logPath)
}

func (s *Segment) overwriteLogForTest(data []byte) error {
	return os.WriteFile(s.logPath, data, 0o640)
}

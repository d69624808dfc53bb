package types

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// MailingList is an ordered list of recipient addresses. Entries are taken
// verbatim; no validation or deduplication is applied.
type MailingList []string

func (ml MailingList) Len() int {
	return len(ml)
}

// ParseMailingList reads one address per line. A trailing CR is dropped and
// lines that are blank after trimming are skipped.
func ParseMailingList(r io.Reader) (MailingList, error) {
	var ml MailingList
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), 1<<20)
	for s.Scan() {
		l := strings.TrimSuffix(s.Text(), "\r")
		if strings.TrimSpace(l) == "" {
			continue
		}
		ml = append(ml, l)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return ml, nil
}

func ParseMailingListFile(path string) (MailingList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseMailingList(f)
}

package state

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// Job is a queued unit of deferred work. Jobs are stored in FIFO order
// keyed by Seq; NotBefore delays a job until a retry backoff expires.
type Job struct {
	Seq       uint64          `json:"seq"`
	ID        string          `json:"id"`
	Hook      string          `json:"hook"`
	Group     string          `json:"group"`
	Args      json.RawMessage `json:"args"`
	Attempts  int             `json:"attempts"`
	NotBefore int64           `json:"not_before"`
	LastError string          `json:"last_error,omitempty"`
	CreatedAt int64           `json:"created_at"`
}

func seqKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)

	return b
}

// EnqueueJob appends a job to the queue and returns it with Seq set.
func (s *State) EnqueueJob(j Job) (Job, error) {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(jobsBucket)

		seq, err := b.NextSequence()
		if err != nil {
			return err
		}

		j.Seq = seq

		data, err := json.Marshal(j)
		if err != nil {
			return err
		}

		return b.Put(seqKey(seq), data)
	})

	return j, err
}

// NextJob returns the oldest job whose NotBefore is at or before now,
// or nil when none is due.
func (s *State) NextJob(now int64) (*Job, error) {
	var next *Job

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(jobsBucket).Cursor()

		for k, v := c.First(); k != nil; k, v = c.Next() {
			var j Job
			if err := json.Unmarshal(v, &j); err != nil {
				return fmt.Errorf("decoding job %d: %w", binary.BigEndian.Uint64(k), err)
			}

			if j.NotBefore <= now {
				next = &j
				return nil
			}
		}

		return nil
	})

	return next, err
}

// SaveJob rewrites an existing job in place (attempts, backoff, error).
func (s *State) SaveJob(j Job) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(j)
		if err != nil {
			return err
		}

		return tx.Bucket(jobsBucket).Put(seqKey(j.Seq), data)
	})
}

// DeleteJob removes a finished job.
func (s *State) DeleteJob(seq uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(jobsBucket).Delete(seqKey(seq))
	})
}

// AllJobs returns every queued job in FIFO order.
func (s *State) AllJobs() ([]Job, error) {
	var jobs []Job

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(jobsBucket).ForEach(func(k, v []byte) error {
			var j Job
			if err := json.Unmarshal(v, &j); err != nil {
				return err
			}

			jobs = append(jobs, j)

			return nil
		})
	})

	return jobs, err
}

package database

import (
	"context"
	"errors"
	"math/rand"

	"github.com/trivio-gg/trivio/internal/models"
)

// ErrInsufficientQuestions means the bank holds fewer rows than a quiz
// needs.
var ErrInsufficientQuestions = errors.New("not enough questions in the bank")

// SampleQuestions queries the bank once and returns n questions in a
// shuffled order. The shuffle happens server-side so every participant
// sees the same sequence.
func (db *DB) SampleQuestions(ctx context.Context, n int) ([]models.Question, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, text, options, correct_idx FROM questions`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bank []models.Question
	for rows.Next() {
		var q models.Question
		if err := rows.Scan(&q.ID, &q.Text, &q.Options, &q.CorrectIdx); err != nil {
			return nil, err
		}
		bank = append(bank, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(bank) < n {
		return nil, ErrInsufficientQuestions
	}

	rand.Shuffle(len(bank), func(i, j int) {
		bank[i], bank[j] = bank[j], bank[i]
	})
	return bank[:n], nil
}

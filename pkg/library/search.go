package library

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Criterion is one advanced-search form field with its declared property
// type. String values match as substrings, numeric and date values form
// independent inclusive bounds.
type Criterion struct {
	PropertyID string
	Type       string // string, number or datetime
	Value      string // string criteria
	Min        string // lower bound for number and datetime criteria
	Max        string // upper bound
}

// looseDate accepts YYYY-M-D shapes without calendar validation; a bound
// that does not match is dropped from the query.
var looseDate = regexp.MustCompile(`^\d{4}-\d{1,2}-\d{1,2}$`)

// QuickSearch runs a full-text containment query against the configured
// search object type.
func (l *Library) QuickSearch(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	stmt := fmt.Sprintf("SELECT * FROM %s WHERE CONTAINS('%s')", l.searchType, text)
	return l.search(ctx, stmt)
}

// AdvancedSearch builds a conjunction of the given criteria and runs it.
// Zero resulting predicates means no query is executed.
func (l *Library) AdvancedSearch(ctx context.Context, criteria []Criterion) error {
	preds := buildPredicates(criteria)
	if len(preds) == 0 {
		return nil
	}
	stmt := fmt.Sprintf("SELECT * FROM %s WHERE %s",
		l.searchType, strings.Join(preds, " AND "))
	return l.search(ctx, stmt)
}

// ClearSearch leaves Search mode and browses the folder that was displayed
// before the search.
func (l *Library) ClearSearch(ctx context.Context) error {
	l.mu.Lock()
	if l.state.mode != ModeSearch {
		l.mu.Unlock()
		return nil
	}
	folderID := l.state.prevFolderID
	l.mu.Unlock()
	return l.ShowFolder(ctx, folderID)
}

// search enters Search mode with the given statement and loads its first
// page. Re-running the current statement refreshes the current page.
func (l *Library) search(ctx context.Context, statement string) error {
	sess, err := l.gateway.Ensure(ctx)
	if err != nil {
		l.status.ErrorAdded(loginErrorMessage(err))
		return err
	}

	l.mu.Lock()
	if l.state.mode != ModeSearch {
		l.state.prevFolderID = l.state.folderID
	}
	if l.state.mode != ModeSearch || l.state.statement != statement {
		l.state.mode = ModeSearch
		l.state.page = 1
		l.state.items = nil
	}
	l.state.statement = statement
	gen := l.bumpGen()
	page := l.state.page
	stmt := statement + " ORDER BY " + l.orderBy()
	l.mu.Unlock()

	l.status.BusyShown()
	defer l.status.BusyHidden()

	result, err := sess.Client().Query(ctx, stmt, false, l.paging(page))
	if err != nil {
		l.status.ErrorAdded("Can't execute the search.")
		return err
	}

	l.apply(gen, result, false)
	return nil
}

// runSearch re-issues an already-entered search statement, for page and
// sort changes.
func (l *Library) runSearch(ctx context.Context, statement string) error {
	if statement == "" {
		return nil
	}
	return l.search(ctx, statement)
}

func buildPredicates(criteria []Criterion) []string {
	var preds []string
	for _, c := range criteria {
		switch c.Type {
		case "number":
			if c.Min != "" {
				preds = append(preds, fmt.Sprintf("%s >= %s", c.PropertyID, c.Min))
			}
			if c.Max != "" {
				preds = append(preds, fmt.Sprintf("%s <= %s", c.PropertyID, c.Max))
			}
		case "datetime":
			if looseDate.MatchString(c.Min) {
				preds = append(preds, fmt.Sprintf(
					"%s >= TIMESTAMP '%sT00:00:00.000+00:00'", c.PropertyID, c.Min))
			}
			if looseDate.MatchString(c.Max) {
				preds = append(preds, fmt.Sprintf(
					"%s <= TIMESTAMP '%sT23:59:59.999+00:00'", c.PropertyID, c.Max))
			}
		default:
			if c.Value != "" {
				preds = append(preds, fmt.Sprintf("%s LIKE '%%%s%%'", c.PropertyID, c.Value))
			}
		}
	}
	return preds
}

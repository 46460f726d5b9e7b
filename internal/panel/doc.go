// Package panel implements the country-year panel data model used by the
// imputation, feature derivation, and quality gate stages.
//
// A Panel is an ordered collection of Observations keyed by (country, year).
// Missing values are represented by absence from the Observation's value map,
// never by NaN or any other sentinel number. The Panel maintains two
// invariants that every time-aware transform relies on:
//
//  1. At most one Observation exists per (country, year) pair.
//  2. Observations are ordered by country code, then ascending year, so that
//     each country's Series is a contiguous, time-ordered slice.
//
// Time-aware operations (lag, diff, rolling windows, fills) operate on a
// Series and never read or write across a series boundary.
package panel

// Package exercise defines the typed exercise target table: for every
// (Joint, Movement, TargetState) it holds the target angle range and the
// movement's priority. Tables are checked for completeness at construction.
package exercise

package grader

const answerStandardTemplate = `You are a teacher grading a quiz.
You are given a question, the student's answer, and the true answer, and are asked to score the student answer as either CORRECT or INCORRECT.

Example Format:
QUESTION: question here
STUDENT ANSWER: student's answer here
TRUE ANSWER: true answer here
GRADE: CORRECT or INCORRECT here

Grade the student answers based ONLY on their factual accuracy. Ignore differences in punctuation and phrasing between the student answer and true answer. It is OK if the student answer contains more information than the true answer, as long as it does not contain any conflicting statements. If the student answers that there is no specific information provided in the context, then the answer is INCORRECT. Begin!

QUESTION: %s
STUDENT ANSWER: %s
TRUE ANSWER: %s

Your response should be as follows:

GRADE: (CORRECT or INCORRECT)
(line break)
JUSTIFICATION: (Without mentioning the student/teacher framing of this prompt, explain why the STUDENT ANSWER is CORRECT or INCORRECT. Use one or two sentences maximum. Keep the answer as concise as possible.)`

const answerFastTemplate = `You are a teacher grading a quiz.
You are given a question, the student's answer, and the true answer, and are asked to score the student answer as either CORRECT or INCORRECT.

Example Format:
QUESTION: question here
STUDENT ANSWER: student's answer here
TRUE ANSWER: true answer here
GRADE: CORRECT or INCORRECT here

Grade the student answers based ONLY on their factual accuracy. Ignore differences in punctuation and phrasing between the student answer and true answer. It is OK if the student answer contains more information than the true answer, as long as it does not contain any conflicting statements. Begin!

QUESTION: %s
STUDENT ANSWER: %s
TRUE ANSWER: %s
GRADE:`

const docsStandardTemplate = `You are a grader trying to determine if a set of retrieved documents will help a student answer a question.

Here is the question:
%s

Here are the retrieved documents:
%s

Here is the answer:
%s

Criteria:
  relevance: Do the retrieved documents contain information that helps answer the question?

Your response should be as follows:

GRADE: (Context is relevant: True or False)
(line break)
JUSTIFICATION: (Without mentioning the student/teacher framing of this prompt, explain why the retrieved documents are or are not relevant. Use one or two sentences maximum. Keep the answer as concise as possible.)`

const docsFastTemplate = `Given the question:
%s

Here are some documents retrieved in response to the question:
%s

And here is the answer to the question:
%s

Criteria:
  relevance: Are the retrieved documents relevant to the question and do they support the answer?

Your response should be a single line:
Context is relevant: True or False`
